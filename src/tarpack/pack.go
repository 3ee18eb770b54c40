// Package tarpack builds an archive from a directory tree, carrying extended attributes
// of each file in extended metadata records.
package tarpack

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
	"github.com/aurora-is-near/tarmeta/src/tarblock"
	"github.com/aurora-is-near/tarmeta/src/tarheader"
	"github.com/aurora-is-near/tarmeta/src/xattr"
)

// ErrNoDir is returned if a given path is not a directory.
var ErrNoDir = errors.New("no directory")

type packer struct {
	options activeConfig
	out     *tarheader.Writer
}

// Pack writes an archive of dir to w. Entry paths are determined by the path options.
// Files that cannot be read are logged and left out.
func Pack(dir string, w io.Writer, options ...Option) error {
	dir = path.Clean(dir)
	appliedOptions := newOptions()
	for _, opt := range options {
		opt.applyOption(appliedOptions)
	}
	appliedOptions.ActivePathType = appliedOptions.PathType(dir)

	headerOptions := append([]tarheader.Option{tarheader.OptLogger(appliedOptions.logger)}, appliedOptions.HeaderOptions...)
	p := &packer{
		options: *appliedOptions,
		out:     tarheader.NewWriter(w, headerOptions...),
	}
	if err := p.addDir(dir); err != nil {
		return err
	}
	p.addAppends(dir)
	return p.out.Close()
}

func (p *packer) addAppends(dir string) {
	for _, ap := range p.options.Appends {
		if err := ap.Append(dir, p.out, p.options); err != nil {
			p.options.logger.Warn("append failed", slog.String("name", ap.name), slog.Any("error", err))
		}
	}
}

func fixHeader(m *tarheader.EntryMetadata, options activeConfig) {
	for _, fix := range options.HeaderFixes {
		fix(m)
	}
}

// entry builds the metadata for the file name described by fi.
func (p *packer) entry(name string, fi fs.FileInfo, link string) (*tarheader.EntryMetadata, error) {
	hdr, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return nil, err
	}
	m := &tarheader.EntryMetadata{
		Header: tarblock.Header{
			Mode:     hdr.Mode,
			UID:      int64(hdr.Uid),
			GID:      int64(hdr.Gid),
			Size:     hdr.Size,
			ModTime:  hdr.ModTime,
			Typeflag: hdr.Typeflag,
			Uname:    hdr.Uname,
			Gname:    hdr.Gname,
			Devmajor: hdr.Devmajor,
			Devminor: hdr.Devminor,
		},
	}
	m.SetPath(p.options.ActivePathType(name))
	m.SetLinkTarget(hdr.Linkname)
	fixHeader(m, p.options)

	if p.options.xattrs {
		attrs, err := xattr.Read(name, fi, extrecord.AllFeatures)
		if err != nil {
			p.options.logger.Warn("reading extended attributes failed", slog.String("path", name), slog.Any("error", err))
		}
		m.Attributes = attrs
		if !m.Attributes.Empty() {
			p.options.logger.Debug("extended attributes",
				slog.String("path", name),
				slog.String("selinux", m.SELinuxContext),
				slog.Bool("capabilities", m.Capabilities != nil),
				slog.Bool("encrypted", m.EncryptionPolicy != nil),
				slog.Bool("android", m.Android.Any()))
		}
	}
	return m, nil
}

func (p *packer) addLink(name string, fi fs.FileInfo) error {
	link, err := os.Readlink(name)
	if err != nil {
		return err
	}
	m, err := p.entry(name, fi, link)
	if err != nil {
		return err
	}
	return p.out.WriteHeader(m)
}

func (p *packer) addFile(name string, fi fs.FileInfo) error {
	m, err := p.entry(name, fi, "")
	if err != nil {
		return err
	}
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := p.out.WriteHeader(m); err != nil {
		return err
	}
	return p.out.CopyContent(f, m.Header.Size)
}

func (p *packer) addDir(dir string) error {
	stat, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return ErrNoDir
	}
	m, err := p.entry(dir, stat, "")
	if err != nil {
		return err
	}
	if err := p.out.WriteHeader(m); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		p.options.logger.Warn("failed to list dir", slog.String("path", dir), slog.Any("error", err))
	}
	for _, e := range entries {
		name := path.Join(dir, e.Name())
		fi, err := e.Info()
		if err != nil {
			p.options.logger.Warn("failed to stat", slog.String("path", name), slog.Any("error", err))
			continue
		}
		switch {
		case fi.IsDir():
			err = p.addDir(name)
		case fi.Mode()&fs.ModeSymlink != 0:
			err = p.addLink(name, fi)
		case fi.Mode().IsRegular():
			err = p.addFile(name, fi)
		default:
			continue
		}
		if err != nil {
			if fatal(err) {
				return err
			}
			p.options.logger.Warn("failed to add", slog.String("path", name), slog.Any("error", err))
		}
	}
	return nil
}

// fatal reports errors that leave the archive at an unknown block boundary.
func fatal(err error) bool {
	return errors.Is(err, tarheader.ErrShortWrite) || errors.Is(err, tarheader.ErrShortRead)
}
