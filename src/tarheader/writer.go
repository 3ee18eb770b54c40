package tarheader

import (
	"errors"
	"io"
	"log/slog"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
	"github.com/aurora-is-near/tarmeta/src/tarblock"
)

// copyBlocks is the number of blocks CopyContent moves per write.
const copyBlocks = 32

// Writer emits the header block sequence of one entry at a time.
// Entry content is written by the caller through WriteContent after WriteHeader.
type Writer struct {
	bw     *tarblock.Writer
	config activeConfig
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer, options ...Option) *Writer {
	return &Writer{
		bw:     tarblock.NewWriter(w),
		config: newConfig(options),
	}
}

// Blocks returns the number of blocks written so far.
func (tw *Writer) Blocks() int64 {
	return tw.bw.Blocks()
}

// WriteHeader writes GNU long link and long name continuations, the extended metadata pairs and
// finally the real header of m. Nothing is written when m cannot be encoded. After a write error
// the stream is at an unknown block boundary and must be abandoned.
func (tw *Writer) WriteHeader(m *EntryMetadata) error {
	format := tw.config.format()
	final, err := tarblock.Encode(m.Header, format)
	if err != nil {
		return err
	}
	records, err := extrecord.Encode(&m.Attributes, tw.config.features)
	if err != nil {
		return platformerrors.WithContext(err, "name", m.Path())
	}

	if m.LongLink != "" || m.LongName != "" {
		if tw.config.gnu {
			if m.LongLink != "" {
				if err := tw.writeLong(m.Header, tarblock.TypeLongLink, m.LongLink); err != nil {
					return err
				}
			}
			if m.LongName != "" {
				if err := tw.writeLong(m.Header, tarblock.TypeLongName, m.LongName); err != nil {
					return err
				}
			}
		} else {
			tw.config.logger.Warn("GNU extensions disabled, long names are truncated",
				slog.String("name", m.LongName), slog.String("link", m.LongLink))
		}
	}

	var buf []byte
	for _, rec := range records {
		if len(buf) > 0 && len(buf)+len(rec) >= extrecord.ExtendedLimit {
			if err := tw.writeExtended(m.Header, buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
		buf = append(buf, rec...)
	}
	if len(buf) > 0 {
		if err := tw.writeExtended(m.Header, buf); err != nil {
			return err
		}
	}

	return tw.bw.WriteBlock(final)
}

// WriteContent writes entry data, zero padded to the next block edge.
func (tw *Writer) WriteContent(p []byte) error {
	return tw.bw.WriteRaw(p)
}

// CopyContent writes size bytes of entry data read from r, zero padded to the next block edge.
func (tw *Writer) CopyContent(r io.Reader, size int64) error {
	buf := make([]byte, copyBlocks*tarblock.BlockSize)
	for size > 0 {
		n := int64(len(buf))
		if size < n {
			n = size
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return platformerrors.WithContext(
				platformerrors.Wrap(errors.Join(ErrShortRead, err), platformerrors.CodeInternal, "reading entry content"),
				"remaining", size)
		}
		if err := tw.bw.WriteRaw(buf[:n]); err != nil {
			return err
		}
		size -= n
	}
	return nil
}

// Close writes the end of archive marker. The underlying writer is not closed.
func (tw *Writer) Close() error {
	return tw.bw.WriteTrailer()
}

// writeLong writes a pseudo header derived from hdr followed by the continuation blocks holding s.
func (tw *Writer) writeLong(hdr tarblock.Header, typeflag byte, s string) error {
	tw.config.logger.Debug("writing GNU long header",
		slog.String("type", string(typeflag)), slog.Int("size", len(s)))
	if err := tw.writePseudo(hdr, typeflag, int64(len(s))); err != nil {
		return err
	}
	return tw.bw.WriteRaw([]byte(s))
}

// writeExtended writes one extended header and the data block holding records.
func (tw *Writer) writeExtended(hdr tarblock.Header, records []byte) error {
	tw.config.logger.Debug("writing extended header", slog.Int("size", len(records)))
	if err := tw.writePseudo(hdr, tarblock.TypeExtended, int64(len(records))); err != nil {
		return err
	}
	return tw.bw.WriteRaw(records)
}

func (tw *Writer) writePseudo(hdr tarblock.Header, typeflag byte, size int64) error {
	hdr.Typeflag = typeflag
	hdr.Size = size
	b, err := tarblock.Encode(hdr, tw.config.format())
	if err != nil {
		return err
	}
	return tw.bw.WriteBlock(b)
}
