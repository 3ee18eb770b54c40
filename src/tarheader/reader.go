package tarheader

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
	"github.com/aurora-is-near/tarmeta/src/tarblock"
)

// Reader decodes the header block sequence of one entry at a time.
// Entry content is not consumed; the caller reads or skips it before calling Next again.
type Reader struct {
	br     *tarblock.Reader
	config activeConfig
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader, options ...Option) *Reader {
	config := newConfig(options)
	return &Reader{
		br:     tarblock.NewReader(r, config.validate, config.ignoreEOT),
		config: config,
	}
}

// Blocks returns the number of blocks consumed so far.
func (tr *Reader) Blocks() int64 {
	return tr.br.Blocks()
}

// ReadBlock reads one data block of the current entry into b.
func (tr *Reader) ReadBlock(b *tarblock.Block) error {
	return tr.br.ReadRaw(b[:])
}

// SkipContent consumes the data blocks of an entry with the given size.
func (tr *Reader) SkipContent(size int64) error {
	return tr.br.Skip(tarblock.BlockCount(size))
}

// Next reads the headers of the next entry: optional GNU long link and long name continuations,
// then any number of extended metadata headers, then the real header. It returns io.EOF at the
// end of the archive. A partially read entry is never returned.
func (tr *Reader) Next() (*EntryMetadata, error) {
	m := new(EntryMetadata)
	hdr, err := tr.readHeader(true)
	if err != nil {
		return nil, err
	}

	// GNU tar emits the long link first, archive/tar the long name. Each may appear once.
	var seenLink, seenName bool
	for hdr.Typeflag == tarblock.TypeLongLink || hdr.Typeflag == tarblock.TypeLongName {
		switch {
		case hdr.Typeflag == tarblock.TypeLongLink && !seenLink:
			seenLink = true
			m.LongLink, err = tr.readLong(hdr, "long link")
		case hdr.Typeflag == tarblock.TypeLongName && !seenName:
			seenName = true
			m.LongName, err = tr.readLong(hdr, "long name")
		default:
			return nil, tr.errorf(ErrFormat, "repeated GNU continuation header (type %q)", hdr.Typeflag)
		}
		if err != nil {
			return nil, err
		}
		if hdr, err = tr.readHeader(false); err != nil {
			return nil, err
		}
	}

	for n := 0; hdr.Typeflag == tarblock.TypeExtended || hdr.Typeflag == tarblock.TypePolicy; n++ {
		if n >= tr.config.maxExtendedHeaders {
			return nil, tr.errorf(ErrFormat, "more than %d extended headers", tr.config.maxExtendedHeaders)
		}
		if err := tr.readExtended(hdr, &m.Attributes); err != nil {
			return nil, err
		}
		if hdr, err = tr.readHeader(false); err != nil {
			return nil, err
		}
	}

	if hdr.IsExtension() {
		return nil, tr.errorf(ErrFormat, "header sequence does not end in an entry header (type %q)", hdr.Typeflag)
	}
	m.Header = hdr
	return m, nil
}

// readHeader reads and decodes one header block. The end of the archive is only accepted
// before the first header of an entry.
func (tr *Reader) readHeader(first bool) (tarblock.Header, error) {
	var b tarblock.Block
	if err := tr.br.Next(&b); err != nil {
		if errors.Is(err, io.EOF) {
			if first {
				return tarblock.Header{}, io.EOF
			}
			return tarblock.Header{}, tr.errorf(errors.Join(ErrShortRead, io.ErrUnexpectedEOF),
				"archive ends inside an entry's header sequence")
		}
		return tarblock.Header{}, err
	}
	hdr, err := tarblock.Decode(&b)
	if err != nil {
		return hdr, platformerrors.WithContext(err, "block", tr.br.Blocks()-1)
	}
	return hdr, nil
}

// readLong reads the continuation blocks of a GNU long name or link header.
func (tr *Reader) readLong(hdr tarblock.Header, what string) (string, error) {
	blocks := tarblock.BlockCount(hdr.Size)
	if blocks > math.MaxInt/tarblock.BlockSize {
		return "", tr.errorf(ErrOverflow, "%s of %d bytes", what, hdr.Size)
	}
	size := blocks * tarblock.BlockSize
	if size > tr.config.maxLongNameSize {
		return "", tr.errorf(ErrAllocation, "%s of %d bytes exceeds %d", what, hdr.Size, tr.config.maxLongNameSize)
	}
	tr.config.logger.Debug("GNU "+what+" detected", slog.Int64("size", hdr.Size), slog.Int64("blocks", blocks))

	buf := make([]byte, size)
	if err := tr.br.ReadRaw(buf); err != nil {
		return "", err
	}
	buf = buf[:hdr.Size]
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// readExtended consumes the data of an extended metadata header and decodes its records into attrs.
func (tr *Reader) readExtended(hdr tarblock.Header, attrs *extrecord.Attributes) error {
	if hdr.Size >= extrecord.ExtendedLimit {
		blocks := tarblock.BlockCount(hdr.Size)
		if blocks > math.MaxInt/tarblock.BlockSize {
			return tr.errorf(ErrOverflow, "extended header of %d bytes", hdr.Size)
		}
		tr.config.logger.Warn("extended header is too long, skipping",
			slog.Int64("size", hdr.Size), slog.Int64("block", tr.br.Blocks()-1))
		return tr.br.Skip(blocks)
	}
	var data tarblock.Block
	if err := tr.br.ReadRaw(data[:]); err != nil {
		return err
	}
	extrecord.Decode(data[:], tr.config.features, tr.config.logger, attrs)
	return nil
}

func (tr *Reader) errorf(sentinel error, format string, args ...interface{}) error {
	code := platformerrors.CodeInvalidInput
	if errors.Is(sentinel, ErrShortRead) {
		code = platformerrors.CodeInternal
	}
	return platformerrors.WithContext(platformerrors.Wrapf(sentinel, code, format, args...),
		"block", tr.br.Blocks())
}
