package tarblock

import (
	"errors"
	"io"

	platformerrors "github.com/jmgilman/go/errors"
)

// Reader reads whole blocks from an underlying stream.
type Reader struct {
	r      io.Reader
	opts   ValidateOptions
	eot    bool // Two zero blocks end the archive.
	blocks int64
}

// NewReader returns a Reader validating headers with opts. If ignoreEOT is set,
// zero blocks are skipped as padding instead of ending the archive.
func NewReader(r io.Reader, opts ValidateOptions, ignoreEOT bool) *Reader {
	return &Reader{r: r, opts: opts, eot: !ignoreEOT}
}

// Blocks returns the number of complete blocks consumed so far.
func (br *Reader) Blocks() int64 {
	return br.blocks
}

// Next reads the next header block into b. Zero blocks are skipped; two consecutive
// zero blocks return io.EOF. A stream ending cleanly on a block edge also returns io.EOF.
// Non-zero blocks are validated.
func (br *Reader) Next(b *Block) error {
	zeroBlocks := 0
	for {
		if err := br.read(b[:], true); err != nil {
			return err
		}
		if b.IsZero() {
			zeroBlocks++
			if br.eot && zeroBlocks >= 2 {
				return io.EOF
			}
			continue
		}
		if err := Validate(b, br.opts); err != nil {
			return platformerrors.WithContext(err, "block", br.blocks-1)
		}
		return nil
	}
}

// ReadRaw fills p, which must be a whole number of blocks, without validation.
// Any shortfall, including the end of the stream, is ErrShortRead.
func (br *Reader) ReadRaw(p []byte) error {
	for len(p) > 0 {
		if err := br.read(p[:BlockSize], false); err != nil {
			return err
		}
		p = p[BlockSize:]
	}
	return nil
}

// Skip consumes n blocks without looking at them.
func (br *Reader) Skip(n int64) error {
	var b Block
	for ; n > 0; n-- {
		if err := br.read(b[:], false); err != nil {
			return err
		}
	}
	return nil
}

func (br *Reader) read(p []byte, eofOK bool) error {
	n, err := io.ReadFull(br.r, p)
	if err == nil {
		br.blocks++
		return nil
	}
	if n == 0 && errors.Is(err, io.EOF) && eofOK {
		return io.EOF
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return platformerrors.WithContextMap(
		platformerrors.Wrap(errors.Join(ErrShortRead, err), platformerrors.CodeInternal, "reading block"),
		map[string]interface{}{"block": br.blocks, "read": n})
}

// Writer writes whole blocks to an underlying stream.
type Writer struct {
	w      io.Writer
	blocks int64
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Blocks returns the number of blocks written so far.
func (bw *Writer) Blocks() int64 {
	return bw.blocks
}

// WriteBlock writes b unconditionally.
func (bw *Writer) WriteBlock(b *Block) error {
	return bw.write(b[:])
}

// WriteRaw writes p zero padded to the next block edge.
func (bw *Writer) WriteRaw(p []byte) error {
	for len(p) >= BlockSize {
		if err := bw.write(p[:BlockSize]); err != nil {
			return err
		}
		p = p[BlockSize:]
	}
	if len(p) == 0 {
		return nil
	}
	var last Block
	copy(last[:], p)
	return bw.write(last[:])
}

// WriteTrailer writes the two zero blocks marking the end of the archive.
func (bw *Writer) WriteTrailer() error {
	for i := 0; i < 2; i++ {
		if err := bw.write(zeroBlock[:]); err != nil {
			return err
		}
	}
	return nil
}

func (bw *Writer) write(p []byte) error {
	n, err := bw.w.Write(p)
	if err == nil && n == len(p) {
		bw.blocks++
		return nil
	}
	if err == nil {
		err = io.ErrShortWrite
	}
	return platformerrors.WithContextMap(
		platformerrors.Wrap(errors.Join(ErrShortWrite, err), platformerrors.CodeInternal, "writing block"),
		map[string]interface{}{"block": bw.blocks, "written": n})
}
