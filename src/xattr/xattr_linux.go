package xattr

import (
	"errors"
	"io/fs"
	"os"
	"unsafe"

	platformerrors "github.com/jmgilman/go/errors"
	"golang.org/x/sys/unix"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
)

// Read returns the attributes of path enabled by features. Symbolic links are not followed.
// Attributes the file or its filesystem does not have are left empty. A failing probe does not
// stop the others: the attributes read so far are returned along with the joined errors.
func Read(path string, fi fs.FileInfo, features extrecord.Features) (extrecord.Attributes, error) {
	var a extrecord.Attributes
	var errs []error
	if features.Has(extrecord.FeatureSELinux) {
		v, err := get(path, NameSELinux)
		if err != nil {
			errs = append(errs, err)
		}
		a.SELinuxContext = selinuxContext(v)
	}
	if features.Has(extrecord.FeatureCapabilities) {
		v, err := get(path, NameCapability)
		if err != nil {
			errs = append(errs, err)
		}
		if v != nil {
			if a.Capabilities, err = capabilities(v); err != nil {
				errs = append(errs, platformerrors.WithContext(
					platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "decoding capabilities"), "path", path))
			}
		}
	}
	if features.Has(extrecord.FeatureAndroidXattrs) {
		for _, flag := range []struct {
			name string
			set  *bool
		}{
			{NameUserDefault, &a.Android.UserDefault},
			{NameInodeCache, &a.Android.InodeCache},
			{NameInodeCodeCache, &a.Android.InodeCodeCache},
		} {
			v, err := get(path, flag.name)
			if err != nil {
				errs = append(errs, err)
			}
			*flag.set = v != nil
		}
	}
	if features.Has(extrecord.FeatureEncryptionPolicy) && (fi.Mode().IsRegular() || fi.IsDir()) {
		policy, err := policyOf(path)
		if err != nil {
			errs = append(errs, err)
		}
		a.EncryptionPolicy = policy
	}
	return a, errors.Join(errs...)
}

var policyOf = encryptionPolicy

// absent reports errors meaning the attribute is not there or cannot be there.
func absent(err error) bool {
	return errors.Is(err, unix.ENODATA) || errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTTY)
}

// get returns the value of one attribute, or nil when it is not set.
func get(path, name string) ([]byte, error) {
	dest := make([]byte, 128)
	for {
		sz, err := unix.Lgetxattr(path, name, dest)
		switch {
		case err == nil:
			return dest[:sz], nil
		case absent(err):
			return nil, nil
		case errors.Is(err, unix.ERANGE):
			sz, err = unix.Lgetxattr(path, name, nil)
			if err != nil {
				return nil, wrapErrno(err, path, name)
			}
			dest = make([]byte, sz)
		default:
			return nil, wrapErrno(err, path, name)
		}
	}
}

// fscrypt_get_policy_ex_arg
type getPolicyExArg struct {
	size   uint64
	policy [extrecord.PolicyV2Size]byte
}

// encryptionPolicy returns the fscrypt policy of a regular file or directory, or nil when it is
// not encrypted. Kernels without the extended ioctl fall back to the v1 only one.
func encryptionPolicy(path string) (extrecord.EncryptionPolicy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeInternal, "opening for fscrypt policy")
	}
	defer f.Close()

	arg := getPolicyExArg{size: extrecord.PolicyV2Size}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.FS_IOC_GET_ENCRYPTION_POLICY_EX, uintptr(unsafe.Pointer(&arg)))
	if errno == 0 {
		return extrecord.ParsePolicy(arg.policy[:arg.size])
	}
	if !errors.Is(errno, unix.ENOTTY) && !errors.Is(errno, unix.EINVAL) {
		if absent(errno) {
			return nil, nil
		}
		return nil, wrapErrno(errno, path, "fscrypt policy")
	}

	var v1 [extrecord.PolicyV1Size]byte
	_, _, errno = unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.FS_IOC_GET_ENCRYPTION_POLICY, uintptr(unsafe.Pointer(&v1[0])))
	switch {
	case errno == 0:
		return extrecord.ParsePolicy(v1[:])
	case absent(errno), errors.Is(errno, unix.EINVAL):
		return nil, nil
	default:
		return nil, wrapErrno(errno, path, "fscrypt policy")
	}
}

func wrapErrno(err error, path, name string) error {
	return platformerrors.WithContextMap(
		platformerrors.Wrap(err, platformerrors.CodeInternal, "reading extended attribute"),
		map[string]interface{}{"path": path, "attribute": name})
}
