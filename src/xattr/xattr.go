// Package xattr collects the extended attributes of a file that an archive entry can carry.
package xattr

import (
	"bytes"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
)

// Extended attribute names.
const (
	NameSELinux        = "security.selinux"
	NameCapability     = "security.capability"
	NameUserDefault    = "user.default"
	NameInodeCache     = "user.inode_cache"
	NameInodeCodeCache = "user.inode_code_cache"
)

// selinuxContext strips the terminating NUL the kernel stores with the label.
func selinuxContext(v []byte) string {
	return string(bytes.TrimRight(v, "\x00"))
}

// capabilities decodes a vfs_cap_data value. Revision 1 values are shorter and are zero
// extended, revision 3 values carry a trailing root id that is dropped.
func capabilities(v []byte) (*extrecord.Capabilities, error) {
	var raw [extrecord.CapabilitiesSize]byte
	copy(raw[:], v)
	caps := new(extrecord.Capabilities)
	if err := caps.UnmarshalBinary(raw[:]); err != nil {
		return nil, err
	}
	return caps, nil
}
