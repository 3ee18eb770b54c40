package tarlist

import (
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/opencontainers/go-digest"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
	"github.com/aurora-is-near/tarmeta/src/tarblock"
	"github.com/aurora-is-near/tarmeta/src/tarheader"
)

// Walk calls fn for every entry of the archive read from r. fn may read the entry content from w.
func Walk(r io.Reader, fn func(w *Walker, e *Entry) error, options ...tarheader.Option) error {
	w := NewWalker(r, options...)
	for {
		e, err := w.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(w, e); err != nil {
			return err
		}
	}
}

// List writes one line per entry: offset, type, size, mode, path, link target and extended attributes.
func List(r io.Reader, out io.Writer, options ...tarheader.Option) error {
	return Walk(r, func(_ *Walker, e *Entry) error {
		line := fmt.Sprintf("%d\t%c\t%d\t%04o\t%s", e.Offset, typeChar(e.Header.Typeflag), e.Header.Size, e.Header.Mode, e.Path())
		if link := e.LinkTarget(); link != "" {
			line += " -> " + link
		}
		if attrs := describeAttributes(e); attrs != "" {
			line += "\t" + attrs
		}
		_, err := fmt.Fprintln(out, line)
		return err
	}, options...)
}

func typeChar(typeflag byte) byte {
	if typeflag == tarblock.TypeRegA {
		return tarblock.TypeReg
	}
	return typeflag
}

func describeAttributes(e *Entry) string {
	var attrs []string
	if e.SELinuxContext != "" {
		attrs = append(attrs, "selinux="+e.SELinuxContext)
	}
	if e.Capabilities != nil {
		attrs = append(attrs, fmt.Sprintf("caps=%#x/%#x", e.Capabilities.Data[0].Permitted, e.Capabilities.Data[1].Permitted))
	}
	if e.EncryptionPolicy != nil {
		version := 2
		if e.EncryptionPolicy.PolicyVersion() == extrecord.FscryptPolicyV1 {
			version = 1
		}
		attrs = append(attrs, fmt.Sprintf("fscrypt=v%d", version))
	}
	if e.Android.UserDefault {
		attrs = append(attrs, "user.default")
	}
	if e.Android.InodeCache {
		attrs = append(attrs, "user.inode_cache")
	}
	if e.Android.InodeCodeCache {
		attrs = append(attrs, "user.inode_code_cache")
	}
	return strings.Join(attrs, ",")
}

// WriteDigests writes the content digest and path of every regular file in the archive read from r.
func WriteDigests(r io.Reader, out io.Writer, options ...tarheader.Option) error {
	return Walk(r, func(w *Walker, e *Entry) error {
		if typeChar(e.Header.Typeflag) != tarblock.TypeReg {
			return nil
		}
		digester := digest.Canonical.Digester()
		if _, err := io.Copy(digester.Hash(), w); err != nil {
			return platformerrors.WithContext(err, "path", e.Path())
		}
		_, err := fmt.Fprintf(out, "%s  %s\n", digester.Digest(), e.Path())
		return err
	}, options...)
}

// ReadDigests computes the digests of the archive file tarfile. See WriteDigests.
func ReadDigests(tarfile string, out io.Writer, options ...tarheader.Option) error {
	f, err := os.Open(tarfile)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteDigests(f, out, options...)
}
