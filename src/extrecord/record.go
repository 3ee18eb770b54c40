package extrecord

import (
	"errors"
	"strconv"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/aurora-is-near/tarmeta/src/tarblock"
)

// Record tags. Tags that carry a value include their trailing '='.
const (
	TagSELinux          = "RHT.security.selinux="
	TagEncryptionPolicy = "TWRP.security.fscrypt="
	TagCapabilities     = "SCHILY.xattr.security.capability="
	TagUserDefault      = "ANDROID.user.default"
	TagInodeCache       = "ANDROID.user.inode_cache"
	TagInodeCodeCache   = "ANDROID.user.inode_code_cache"

	// policySelector precedes the binary policy in an encryption policy record.
	policySelector = '0'
)

// ExtendedLimit bounds the payload of one extended metadata block. Extended headers declaring
// this size or more are not decoded, and the writer never emits them.
const ExtendedLimit = tarblock.BlockSize - 1

var (
	// ErrInvalidRecord is returned for values that cannot be represented in a record.
	ErrInvalidRecord = errors.New("invalid extended record")
	// ErrRecordTooLarge is returned for a record that cannot fit in one extended block.
	ErrRecordTooLarge = errors.New("extended record too large")
)

// RecordLength returns the self-inclusive declared length of a record. The estimate assumes a
// two digit length and is corrected once when it reaches three digits. Four digit lengths are
// not corrected; such records never fit in an extended block.
func RecordLength(tagLen, payloadLen int) int {
	n := tagLen + payloadLen + 3 + 1
	if n >= 100 {
		n++
	}
	return n
}

// AppendRecord appends "<len> <tag><payload>\n" to dst.
func AppendRecord(dst []byte, tag string, payload []byte) []byte {
	dst = strconv.AppendInt(dst, int64(RecordLength(len(tag), len(payload))), 10)
	dst = append(dst, ' ')
	dst = append(dst, tag...)
	dst = append(dst, payload...)
	return append(dst, '\n')
}

// Encode returns the records for a in their fixed order: SELinux context, encryption policy,
// capabilities, then each Android flag. Attributes whose feature is disabled are skipped.
func Encode(a *Attributes, features Features) ([][]byte, error) {
	var records [][]byte
	add := func(tag string, payload []byte) error {
		if n := RecordLength(len(tag), len(payload)); n >= ExtendedLimit {
			return platformerrors.WithContextMap(
				platformerrors.Wrap(ErrRecordTooLarge, platformerrors.CodeInvalidInput, "encoding record"),
				map[string]interface{}{"tag": tag, "length": n})
		}
		records = append(records, AppendRecord(nil, tag, payload))
		return nil
	}

	if features.Has(FeatureSELinux) && a.SELinuxContext != "" {
		if strings.ContainsRune(a.SELinuxContext, '\n') {
			return nil, platformerrors.Wrap(ErrInvalidRecord, platformerrors.CodeInvalidInput,
				"selinux context contains a newline")
		}
		if err := add(TagSELinux, []byte(a.SELinuxContext)); err != nil {
			return nil, err
		}
	}
	if features.Has(FeatureEncryptionPolicy) && a.EncryptionPolicy != nil {
		policy, err := a.EncryptionPolicy.MarshalBinary()
		if err != nil {
			return nil, platformerrors.Wrap(errors.Join(ErrInvalidRecord, err), platformerrors.CodeInvalidInput,
				"encoding encryption policy")
		}
		if err := add(TagEncryptionPolicy, append([]byte{policySelector}, policy...)); err != nil {
			return nil, err
		}
	}
	if features.Has(FeatureCapabilities) && a.Capabilities != nil {
		caps, _ := a.Capabilities.MarshalBinary()
		if err := add(TagCapabilities, caps); err != nil {
			return nil, err
		}
	}
	if features.Has(FeatureAndroidXattrs) {
		for _, flag := range []struct {
			set bool
			tag string
		}{
			{a.Android.UserDefault, TagUserDefault},
			{a.Android.InodeCache, TagInodeCache},
			{a.Android.InodeCodeCache, TagInodeCodeCache},
		} {
			if !flag.set {
				continue
			}
			if err := add(flag.tag, nil); err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}
