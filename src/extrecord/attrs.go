package extrecord

import (
	"encoding"
	"encoding/binary"
	"fmt"

	platformerrors "github.com/jmgilman/go/errors"
)

// Features selects which extended attributes are encoded and decoded.
type Features uint8

const (
	FeatureSELinux Features = 1 << iota
	FeatureCapabilities
	FeatureEncryptionPolicy
	FeatureAndroidXattrs

	NoFeatures  Features = 0
	AllFeatures          = FeatureSELinux | FeatureCapabilities | FeatureEncryptionPolicy | FeatureAndroidXattrs
)

// Has reports whether every feature in x is enabled in f.
func (f Features) Has(x Features) bool { return f&x == x }

// Attributes are the optional per-entry values carried in extended metadata records.
type Attributes struct {
	SELinuxContext   string           // Empty when absent.
	Capabilities     *Capabilities    // Nil when absent.
	EncryptionPolicy EncryptionPolicy // Nil when absent.
	Android          AndroidFlags
}

// Empty reports whether no attribute is set.
func (a *Attributes) Empty() bool {
	return a.SELinuxContext == "" && a.Capabilities == nil && a.EncryptionPolicy == nil && !a.Android.Any()
}

// AndroidFlags record the presence of Android user xattrs. They carry no value.
type AndroidFlags struct {
	UserDefault    bool // user.default
	InodeCache     bool // user.inode_cache
	InodeCodeCache bool // user.inode_code_cache
}

// Any reports whether at least one flag is set.
func (f AndroidFlags) Any() bool {
	return f.UserDefault || f.InodeCache || f.InodeCodeCache
}

const (
	// CapabilitiesSize is the size of the vfs_cap_data record.
	CapabilitiesSize = 20

	VFSCapRevision2      uint32 = 0x02000000
	VFSCapFlagsEffective uint32 = 0x000001
)

// CapabilityData is one 32-bit half of the permitted and inheritable sets.
type CapabilityData struct {
	Permitted   uint32
	Inheritable uint32
}

// Capabilities is the POSIX file capability record stored in security.capability.
type Capabilities struct {
	MagicEtc uint32
	Data     [2]CapabilityData
}

// MarshalBinary encodes c in the little-endian vfs_cap_data layout.
func (c *Capabilities) MarshalBinary() ([]byte, error) {
	b := make([]byte, CapabilitiesSize)
	binary.LittleEndian.PutUint32(b[0:], c.MagicEtc)
	for i, d := range c.Data {
		binary.LittleEndian.PutUint32(b[4+i*8:], d.Permitted)
		binary.LittleEndian.PutUint32(b[8+i*8:], d.Inheritable)
	}
	return b, nil
}

// UnmarshalBinary decodes the first CapabilitiesSize bytes of b.
func (c *Capabilities) UnmarshalBinary(b []byte) error {
	if len(b) < CapabilitiesSize {
		return fmt.Errorf("capability record: %d bytes, need %d", len(b), CapabilitiesSize)
	}
	c.MagicEtc = binary.LittleEndian.Uint32(b[0:])
	for i := range c.Data {
		c.Data[i].Permitted = binary.LittleEndian.Uint32(b[4+i*8:])
		c.Data[i].Inheritable = binary.LittleEndian.Uint32(b[8+i*8:])
	}
	return nil
}

// fscrypt policy layouts.
const (
	FscryptPolicyV1 uint8 = 0
	FscryptPolicyV2 uint8 = 2

	PolicyV1Size = 12
	PolicyV2Size = 24

	KeyDescriptorSize = 8
	KeyIdentifierSize = 16

	ModeAES256XTS uint8 = 1
	ModeAES256CTS uint8 = 4
	ModeAdiantum  uint8 = 9

	PolicyFlagsPad16 uint8 = 0x02
)

// EncryptionPolicy is an fscrypt policy, either *PolicyV1 or *PolicyV2. Nil means none.
type EncryptionPolicy interface {
	encoding.BinaryMarshaler
	// PolicyVersion returns the fscrypt version byte that starts the binary layout.
	PolicyVersion() uint8
}

// PolicyV1 is struct fscrypt_policy_v1.
type PolicyV1 struct {
	ContentsEncryptionMode  uint8
	FilenamesEncryptionMode uint8
	Flags                   uint8
	MasterKeyDescriptor     [KeyDescriptorSize]byte
}

func (*PolicyV1) PolicyVersion() uint8 { return FscryptPolicyV1 }

func (p *PolicyV1) MarshalBinary() ([]byte, error) {
	b := make([]byte, PolicyV1Size)
	b[0] = FscryptPolicyV1
	b[1] = p.ContentsEncryptionMode
	b[2] = p.FilenamesEncryptionMode
	b[3] = p.Flags
	copy(b[4:], p.MasterKeyDescriptor[:])
	return b, nil
}

// PolicyV2 is struct fscrypt_policy_v2.
type PolicyV2 struct {
	ContentsEncryptionMode  uint8
	FilenamesEncryptionMode uint8
	Flags                   uint8
	Reserved                [4]byte
	MasterKeyIdentifier     [KeyIdentifierSize]byte
}

func (*PolicyV2) PolicyVersion() uint8 { return FscryptPolicyV2 }

func (p *PolicyV2) MarshalBinary() ([]byte, error) {
	b := make([]byte, PolicyV2Size)
	b[0] = FscryptPolicyV2
	b[1] = p.ContentsEncryptionMode
	b[2] = p.FilenamesEncryptionMode
	b[3] = p.Flags
	copy(b[4:8], p.Reserved[:])
	copy(b[8:], p.MasterKeyIdentifier[:])
	return b, nil
}

// policySize returns the binary size of the policy whose layout starts with version.
func policySize(version uint8) (int, bool) {
	switch version {
	case FscryptPolicyV1:
		return PolicyV1Size, true
	case FscryptPolicyV2:
		return PolicyV2Size, true
	}
	return 0, false
}

// parsePolicy decodes a policy from b, which must hold exactly the layout for its version byte.
func parsePolicy(b []byte) EncryptionPolicy {
	switch b[0] {
	case FscryptPolicyV1:
		p := &PolicyV1{ContentsEncryptionMode: b[1], FilenamesEncryptionMode: b[2], Flags: b[3]}
		copy(p.MasterKeyDescriptor[:], b[4:])
		return p
	default:
		p := &PolicyV2{ContentsEncryptionMode: b[1], FilenamesEncryptionMode: b[2], Flags: b[3]}
		copy(p.Reserved[:], b[4:8])
		copy(p.MasterKeyIdentifier[:], b[8:])
		return p
	}
}

// ParsePolicy decodes a policy in its kernel layout. Trailing bytes beyond the layout of the
// version byte are ignored.
func ParsePolicy(b []byte) (EncryptionPolicy, error) {
	if len(b) == 0 {
		return nil, platformerrors.Wrap(ErrInvalidRecord, platformerrors.CodeInvalidInput, "empty fscrypt policy")
	}
	size, ok := policySize(b[0])
	if !ok {
		return nil, platformerrors.Wrapf(ErrInvalidRecord, platformerrors.CodeInvalidInput,
			"unknown fscrypt policy version %d", b[0])
	}
	if len(b) < size {
		return nil, platformerrors.Wrapf(ErrInvalidRecord, platformerrors.CodeInvalidInput,
			"fscrypt policy of %d bytes, want %d", len(b), size)
	}
	return parsePolicy(b[:size]), nil
}
