package tarblock

import "errors"

var (
	// ErrFormat is returned for headers with a bad magic, version, checksum or numeric field.
	ErrFormat = errors.New("invalid tar header")
	// ErrShortRead is returned when the stream ends or fails inside a block.
	ErrShortRead = errors.New("short block read")
	// ErrShortWrite is returned when a block could not be written completely.
	ErrShortWrite = errors.New("short block write")
	// ErrOverflow is returned when a numeric value does not fit the arithmetic or the field.
	ErrOverflow = errors.New("numeric overflow")
)
