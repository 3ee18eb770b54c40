package tarblock

import "time"

const (
	// BlockSize is the size of every header and data block in a tar stream.
	BlockSize = 512

	nameSize     = 100
	prefixSize   = 155
	checksumPos  = 148
	checksumSize = 8

	magicUSTAR, versionUSTAR = "ustar\x00", "00"
	magicGNU, versionGNU     = "ustar ", " \x00"
	magicPrefix              = "ustar"
)

// Type flags understood by the header codec.
const (
	TypeReg      byte = '0'
	TypeRegA     byte = '\x00'
	TypeLink     byte = '1'
	TypeSymlink  byte = '2'
	TypeChar     byte = '3'
	TypeBlock    byte = '4'
	TypeDir      byte = '5'
	TypeFifo     byte = '6'
	TypeLongLink byte = 'K' // GNU long link target continuation
	TypeLongName byte = 'L' // GNU long name continuation
	TypeExtended byte = 'x' // extended metadata records
	TypePolicy   byte = 'p' // legacy encryption policy records
)

// Format selects the magic and version written into a header.
type Format int

const (
	FormatUSTAR Format = iota
	FormatGNU
)

func (f Format) String() string {
	if f == FormatGNU {
		return "GNU"
	}
	return "USTAR"
}

// Block is one raw 512-byte tar block.
type Block [BlockSize]byte

var zeroBlock Block

type field struct {
	pos, size int
}

var (
	fieldName     = field{0, nameSize}
	fieldMode     = field{100, 8}
	fieldUID      = field{108, 8}
	fieldGID      = field{116, 8}
	fieldSize     = field{124, 12}
	fieldModTime  = field{136, 12}
	fieldChecksum = field{checksumPos, checksumSize}
	fieldTypeflag = field{156, 1}
	fieldLinkname = field{157, nameSize}
	fieldMagic    = field{257, 6}
	fieldVersion  = field{263, 2}
	fieldUname    = field{265, 32}
	fieldGname    = field{297, 32}
	fieldDevmajor = field{329, 8}
	fieldDevminor = field{337, 8}
	fieldPrefix   = field{345, prefixSize}
)

func (b *Block) field(f field) []byte { return b[f.pos:][:f.size] }

// Typeflag returns the entry type byte of the block.
func (b *Block) Typeflag() byte { return b[fieldTypeflag.pos] }

// Magic returns the raw magic field.
func (b *Block) Magic() []byte { return b.field(fieldMagic) }

// Version returns the raw version field.
func (b *Block) Version() []byte { return b.field(fieldVersion) }

// IsZero reports whether every byte of the block is zero.
func (b *Block) IsZero() bool { return *b == zeroBlock }

// Reset clears the block.
func (b *Block) Reset() { *b = Block{} }

// ComputeChecksum computes the header checksum with the checksum field read as spaces.
// POSIX specifies an unsigned byte sum; some historic writers used signed bytes. Both are returned.
func (b *Block) ComputeChecksum() (unsigned, signed int64) {
	for i, c := range b {
		if checksumPos <= i && i < checksumPos+checksumSize {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

// Header is the decoded standard ustar/GNU header of one entry.
type Header struct {
	Name     string
	Mode     int64
	UID      int64
	GID      int64
	Size     int64
	ModTime  time.Time
	Checksum int64 // Only populated when decoding.
	Typeflag byte
	Linkname string
	Magic    string // Only populated when decoding. Encode derives it from the Format.
	Version  string // Only populated when decoding. Encode derives it from the Format.
	Uname    string
	Gname    string
	Devmajor int64
	Devminor int64
	Prefix   string
}

// IsExtension reports whether the header only carries data for the header that follows it.
func (h *Header) IsExtension() bool {
	switch h.Typeflag {
	case TypeLongLink, TypeLongName, TypeExtended, TypePolicy:
		return true
	}
	return false
}

// Blocks returns the number of data blocks following the header.
func (h *Header) Blocks() int64 {
	return BlockCount(h.Size)
}

// HasContent reports whether data blocks of the entry itself follow the header.
// Links, devices, directories and fifos carry none whatever their size field says.
func (h *Header) HasContent() bool {
	if h.Size <= 0 || h.IsExtension() {
		return false
	}
	switch h.Typeflag {
	case TypeLink, TypeSymlink, TypeChar, TypeBlock, TypeDir, TypeFifo:
		return false
	}
	return true
}

// BlockCount returns ceil(size/BlockSize). It does not guard against overflow of size*BlockSize.
func BlockCount(size int64) int64 {
	if size <= 0 {
		return 0
	}
	n := size / BlockSize
	if size%BlockSize != 0 {
		n++
	}
	return n
}

// Padding returns the number of zero bytes needed after size bytes of data to reach a block edge.
func Padding(size int64) int64 {
	r := size % BlockSize
	if r == 0 {
		return 0
	}
	return BlockSize - r
}
