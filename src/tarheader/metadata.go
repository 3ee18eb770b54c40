package tarheader

import (
	"errors"
	"path"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
	"github.com/aurora-is-near/tarmeta/src/tarblock"
)

// nameSize is the capacity of the ustar name and linkname fields.
const nameSize = 100

var (
	ErrFormat     = tarblock.ErrFormat
	ErrShortRead  = tarblock.ErrShortRead
	ErrShortWrite = tarblock.ErrShortWrite
	ErrOverflow   = tarblock.ErrOverflow

	// ErrAllocation is returned when a continuation would need a buffer beyond the configured bound.
	ErrAllocation = errors.New("continuation buffer too large")
)

// EntryMetadata is everything the header blocks of one entry describe.
type EntryMetadata struct {
	// Header is the real entry header. Reader never leaves a GNU or extended pseudo-header here.
	Header tarblock.Header
	// LongName and LongLink override Header.Name and Header.Linkname when not empty.
	LongName string
	LongLink string

	extrecord.Attributes
}

// Path returns the full entry name.
func (m *EntryMetadata) Path() string {
	switch {
	case m.LongName != "":
		return m.LongName
	case m.Header.Prefix != "":
		return path.Join(m.Header.Prefix, m.Header.Name)
	default:
		return m.Header.Name
	}
}

// LinkTarget returns the full link target.
func (m *EntryMetadata) LinkTarget() string {
	if m.LongLink != "" {
		return m.LongLink
	}
	return m.Header.Linkname
}

// SetPath stores name in the header, using a GNU long name when it does not fit.
func (m *EntryMetadata) SetPath(name string) {
	m.Header.Prefix = ""
	m.LongName = ""
	if len(name) > nameSize {
		m.LongName = name
		name = name[:nameSize]
	}
	m.Header.Name = name
}

// SetLinkTarget stores link in the header, using a GNU long link when it does not fit.
func (m *EntryMetadata) SetLinkTarget(link string) {
	m.LongLink = ""
	if len(link) > nameSize {
		m.LongLink = link
		link = link[:nameSize]
	}
	m.Header.Linkname = link
}

// Reset releases every optional field.
func (m *EntryMetadata) Reset() {
	*m = EntryMetadata{}
}
