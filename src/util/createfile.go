// Package util holds helpers shared by the command line tools.
package util

import (
	"io"
	"log/slog"
	"os"
)

// CreateFile creates filename for writing. It fails if the file exists.
func CreateFile(filename string) (*os.File, error) {
	return os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0640)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Output returns stdout for "-" or an empty name, else a newly created filename.
func Output(filename string) (io.WriteCloser, error) {
	if filename == "" || filename == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return CreateFile(filename)
}

// Logger returns a text logger on stderr, at debug level if verbose is set.
func Logger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
