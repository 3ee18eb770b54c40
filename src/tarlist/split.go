package tarlist

import (
	"errors"
	"io"
	"os"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/aurora-is-near/tarmeta/src/tarblock"
	"github.com/aurora-is-near/tarmeta/src/tarheader"
)

// ErrNoSplitPoint is returned when no entry ends past the requested position.
var ErrNoSplitPoint = errors.New("no entry boundary after split position")

// Boundary returns the end of the first entry whose headers are looked for at or after stop.
// Cutting an archive there leaves every entry, with its extension headers, whole on one side.
func Boundary(r io.Reader, stop int64, options ...tarheader.Option) (int64, error) {
	w := NewWalker(r, options...)
	for {
		e, err := w.Next()
		if errors.Is(err, io.EOF) {
			return 0, platformerrors.WithContext(
				platformerrors.Wrap(ErrNoSplitPoint, platformerrors.CodeInvalidInput, "finding split point"),
				"stop", stop)
		}
		if err != nil {
			return 0, err
		}
		if e.Offset >= stop {
			return e.DataOffset + w.blocksLeft*tarblock.BlockSize, nil
		}
	}
}

func splitfile(filename string, midpoint int64) error {
	destF, err := os.Create(filename + ".part2")
	if err != nil {
		return err
	}
	defer destF.Close()
	sourceF, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer sourceF.Close()
	if _, err := sourceF.Seek(midpoint, io.SeekStart); err != nil {
		return err
	}
	if _, err = io.Copy(destF, sourceF); err != nil {
		return err
	}
	return os.Truncate(filename, midpoint)
}

// SplitMiddle splits an archive file roughly at its middle on an entry boundary.
// It truncates tarfile in place and copies the remainder into "<tarfile>.part2".
func SplitMiddle(tarfile string, options ...tarheader.Option) error {
	f, err := os.Open(tarfile)
	if err != nil {
		return err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	mid, err := Boundary(f, stat.Size()/2, options...)
	if err != nil {
		return err
	}
	return splitfile(tarfile, mid)
}
