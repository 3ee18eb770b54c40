package extrecord

import (
	"bytes"
	"log/slog"

	"github.com/aurora-is-near/tarmeta/src/tarblock"
)

// Decode looks up every enabled tag in one extended data block and stores what it finds in into.
// Tags are searched independently, so records may come in any order and unknown records are
// ignored. The final byte of the block is treated as a terminator. Malformed values are logged
// and skipped; Decode never fails.
func Decode(data []byte, features Features, logger *slog.Logger, into *Attributes) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(data) > tarblock.BlockSize {
		data = data[:tarblock.BlockSize]
	}
	if len(data) > 0 {
		data = data[:len(data)-1]
	}

	if features.Has(FeatureCapabilities) {
		if v, ok := valueAfter(data, TagCapabilities); ok && len(v) >= CapabilitiesSize {
			caps := new(Capabilities)
			if err := caps.UnmarshalBinary(v[:CapabilitiesSize]); err != nil {
				logger.Warn("invalid posix capabilities, ignoring", slog.Any("error", err))
			} else {
				into.Capabilities = caps
				logger.Debug("posix capabilities detected", slog.Uint64("magic_etc", uint64(caps.MagicEtc)))
			}
		}
	}
	if features.Has(FeatureSELinux) {
		if v, ok := valueAfter(data, TagSELinux); ok && len(v) > 0 {
			if end := bytes.IndexByte(v, '\n'); end >= 0 {
				into.SELinuxContext = string(v[:end])
				logger.Debug("selinux context detected", slog.String("context", into.SELinuxContext))
			}
		}
	}
	if features.Has(FeatureAndroidXattrs) {
		if bytes.Contains(data, []byte(TagUserDefault)) {
			into.Android.UserDefault = true
			logger.Debug("android user.default xattr detected")
		}
		if bytes.Contains(data, []byte(TagInodeCache)) {
			into.Android.InodeCache = true
			logger.Debug("android user.inode_cache xattr detected")
		}
		if bytes.Contains(data, []byte(TagInodeCodeCache)) {
			into.Android.InodeCodeCache = true
			logger.Debug("android user.inode_code_cache xattr detected")
		}
	}
	if features.Has(FeatureEncryptionPolicy) {
		if v, ok := valueAfter(data, TagEncryptionPolicy); ok && len(v) > 0 {
			if policy := decodePolicy(v, logger); policy != nil {
				into.EncryptionPolicy = policy
			}
		}
	}
}

func decodePolicy(v []byte, logger *slog.Logger) EncryptionPolicy {
	if v[0] != policySelector {
		logger.Warn("invalid fscrypt header found", slog.Int("selector", int(v[0])))
		return nil
	}
	v = v[1:]
	if len(v) == 0 {
		logger.Warn("truncated fscrypt policy")
		return nil
	}
	size, ok := policySize(v[0])
	if !ok {
		logger.Warn("unknown fscrypt policy version", slog.Int("version", int(v[0])))
		return nil
	}
	if len(v) < size {
		logger.Warn("truncated fscrypt policy", slog.Int("size", len(v)), slog.Int("want", size))
		return nil
	}
	if len(v) == size || v[size] != '\n' {
		logger.Warn("did not find newline char in expected location, continuing anyway")
	}
	policy := parsePolicy(v[:size])
	logger.Debug("fscrypt policy detected", slog.Int("version", int(policy.PolicyVersion())))
	return policy
}

func valueAfter(data []byte, tag string) ([]byte, bool) {
	i := bytes.Index(data, []byte(tag))
	if i < 0 {
		return nil, false
	}
	return data[i+len(tag):], true
}
