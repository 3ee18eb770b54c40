// Package tarlist walks the entries of an archive, exposing their metadata, byte offsets and content.
package tarlist

import (
	"io"

	"github.com/aurora-is-near/tarmeta/src/tarblock"
	"github.com/aurora-is-near/tarmeta/src/tarheader"
)

// PosReader counts the bytes read from r.
type PosReader struct {
	pos int64
	r   io.Reader
}

func NewPosReader(r io.Reader) *PosReader {
	return &PosReader{r: r}
}

func (pr *PosReader) Read(p []byte) (n int, err error) {
	n, err = pr.r.Read(p)
	pr.pos = pr.pos + int64(n)
	return n, err
}

// Pos returns the number of bytes read so far.
func (pr *PosReader) Pos() int64 {
	return pr.pos
}

// Entry is one archive entry.
type Entry struct {
	*tarheader.EntryMetadata
	// Offset is the position right after the previous entry, where its header sequence is looked for.
	Offset int64
	// DataOffset is the position of the first content block.
	DataOffset int64
}

// Walker iterates over the entries of an archive. It is an io.Reader for the content of the current entry.
type Walker struct {
	pr *PosReader
	tr *tarheader.Reader

	remaining  int64 // Content bytes not yet returned by Read.
	blocksLeft int64 // Content blocks not yet consumed.
	block      tarblock.Block
	buf        []byte
}

// NewWalker returns a Walker reading r with the header options given.
func NewWalker(r io.Reader, options ...tarheader.Option) *Walker {
	pr := NewPosReader(r)
	return &Walker{
		pr: pr,
		tr: tarheader.NewReader(pr, options...),
	}
}

// Next skips the unread content of the current entry and returns the next one.
// It returns io.EOF at the end of the archive.
func (w *Walker) Next() (*Entry, error) {
	if w.blocksLeft > 0 {
		if err := w.tr.SkipContent(w.blocksLeft * tarblock.BlockSize); err != nil {
			return nil, err
		}
	}
	w.remaining, w.blocksLeft, w.buf = 0, 0, nil

	start := w.pr.Pos()
	m, err := w.tr.Next()
	if err != nil {
		return nil, err
	}
	e := &Entry{
		EntryMetadata: m,
		Offset:        start,
		DataOffset:    w.pr.Pos(),
	}
	if m.Header.HasContent() {
		w.remaining = m.Header.Size
		w.blocksLeft = tarblock.BlockCount(m.Header.Size)
	}
	return e, nil
}

// Read reads the content of the current entry.
func (w *Walker) Read(p []byte) (int, error) {
	if w.remaining == 0 {
		return 0, io.EOF
	}
	if len(w.buf) == 0 {
		if err := w.tr.ReadBlock(&w.block); err != nil {
			return 0, err
		}
		w.blocksLeft--
		w.buf = w.block[:min(w.remaining, tarblock.BlockSize)]
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	w.remaining -= int64(n)
	return n, nil
}
