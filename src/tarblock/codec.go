package tarblock

import (
	"bytes"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

// ValidateOptions selects the header checks applied to every non-zero header block.
type ValidateOptions struct {
	CheckMagic     bool // Require the "ustar" magic.
	CheckVersion   bool // Require the POSIX "00" version.
	IgnoreChecksum bool // Skip the checksum comparison.
}

// Validate checks magic, version and checksum of b according to opts.
func Validate(b *Block, opts ValidateOptions) error {
	if opts.CheckMagic && !bytes.HasPrefix(b.Magic(), []byte(magicPrefix)) {
		return platformerrors.Wrapf(ErrFormat, platformerrors.CodeInvalidInput,
			"unknown magic %q", b.Magic())
	}
	if opts.CheckVersion && string(b.Version()) != versionUSTAR {
		return platformerrors.Wrapf(ErrFormat, platformerrors.CodeInvalidInput,
			"unknown version %q", b.Version())
	}
	if opts.IgnoreChecksum {
		return nil
	}
	var p parser
	stored := p.parseOctal(b.field(fieldChecksum))
	unsigned, signed := b.ComputeChecksum()
	if p.err != nil || (stored != unsigned && stored != signed) {
		return platformerrors.WithContextMap(
			platformerrors.Wrap(ErrFormat, platformerrors.CodeInvalidInput, "checksum mismatch"),
			map[string]interface{}{"stored": stored, "computed": unsigned})
	}
	return nil
}

// Decode parses the standard header fields of b. It does not validate the block.
func Decode(b *Block) (Header, error) {
	var p parser
	h := Header{
		Name:     p.parseString(b.field(fieldName)),
		Mode:     p.parseNumeric(b.field(fieldMode)),
		UID:      p.parseNumeric(b.field(fieldUID)),
		GID:      p.parseNumeric(b.field(fieldGID)),
		Size:     p.parseNumeric(b.field(fieldSize)),
		Checksum: p.parseOctal(b.field(fieldChecksum)),
		Typeflag: b.Typeflag(),
		Linkname: p.parseString(b.field(fieldLinkname)),
		Magic:    string(b.Magic()),
		Version:  string(b.Version()),
		Uname:    p.parseString(b.field(fieldUname)),
		Gname:    p.parseString(b.field(fieldGname)),
		Devmajor: p.parseNumeric(b.field(fieldDevmajor)),
		Devminor: p.parseNumeric(b.field(fieldDevminor)),
	}
	// The GNU format keeps access and change times where ustar has the prefix.
	if h.Magic != magicGNU {
		h.Prefix = p.parseString(b.field(fieldPrefix))
	}
	h.ModTime = time.Unix(p.parseNumeric(b.field(fieldModTime)), 0)
	if p.err != nil {
		return h, platformerrors.Wrap(p.err, platformerrors.CodeInvalidInput, "malformed numeric field")
	}
	if h.Size < 0 {
		return h, platformerrors.Wrapf(ErrFormat, platformerrors.CodeInvalidInput, "negative size %d", h.Size)
	}
	return h, nil
}

// Encode writes h into a fresh block using the magic and version of format and sets its checksum.
// Numeric values that do not fit in octal use base-256 for FormatGNU and fail with ErrOverflow otherwise.
func Encode(h Header, format Format) (*Block, error) {
	b := new(Block)
	f := formatter{base256: format == FormatGNU}
	f.formatString(b.field(fieldName), h.Name)
	f.formatNumeric(b.field(fieldMode), h.Mode)
	f.formatNumeric(b.field(fieldUID), h.UID)
	f.formatNumeric(b.field(fieldGID), h.GID)
	f.formatNumeric(b.field(fieldSize), h.Size)
	var mtime int64
	if !h.ModTime.IsZero() {
		mtime = h.ModTime.Unix()
	}
	f.formatNumeric(b.field(fieldModTime), mtime)
	b[fieldTypeflag.pos] = h.Typeflag
	f.formatString(b.field(fieldLinkname), h.Linkname)
	switch format {
	case FormatGNU:
		copy(b.Magic(), magicGNU)
		copy(b.Version(), versionGNU)
	default:
		copy(b.Magic(), magicUSTAR)
		copy(b.Version(), versionUSTAR)
	}
	f.formatString(b.field(fieldUname), h.Uname)
	f.formatString(b.field(fieldGname), h.Gname)
	f.formatNumeric(b.field(fieldDevmajor), h.Devmajor)
	f.formatNumeric(b.field(fieldDevminor), h.Devminor)
	if format != FormatGNU {
		f.formatString(b.field(fieldPrefix), h.Prefix)
	}
	if f.err != nil {
		return nil, platformerrors.WithContext(
			platformerrors.Wrap(f.err, platformerrors.CodeInvalidInput, "header field does not fit"),
			"name", h.Name)
	}
	b.SetChecksum()
	return b, nil
}

// SetChecksum recomputes and stores the checksum of b.
// The field is six octal digits, a NUL and a space.
func (b *Block) SetChecksum() {
	var f formatter
	field := b.field(fieldChecksum)
	sum, _ := b.ComputeChecksum() // 256..128776, always fits in six octal digits.
	f.formatOctal(field[:7], sum)
	field[7] = ' '
}
