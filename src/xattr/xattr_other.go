//go:build !linux

package xattr

import (
	"io/fs"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
)

// Read returns no attributes on platforms without Linux extended attributes.
func Read(path string, fi fs.FileInfo, features extrecord.Features) (extrecord.Attributes, error) {
	return extrecord.Attributes{}, nil
}
