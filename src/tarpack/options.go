package tarpack

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aurora-is-near/tarmeta/src/tarblock"
	"github.com/aurora-is-near/tarmeta/src/tarheader"
)

// PathFunc creates a function for rewriting paths.
type PathFunc func(base string) PathRewriteFunc

// PathRewriteFunc rewrites a path.
type PathRewriteFunc func(d string) string

type headerFixFunc func(m *tarheader.EntryMetadata)

type activeConfig struct {
	PathType       PathFunc
	ActivePathType PathRewriteFunc
	HeaderFixes    []headerFixFunc
	Appends        []appendFileOpt
	HeaderOptions  []tarheader.Option
	xattrs         bool
	logger         *slog.Logger
}

// Option is an option for archive creation.
type Option interface {
	applyOption(option *activeConfig)
}

func newOptions() *activeConfig {
	return &activeConfig{
		PathType:    relativePath,
		HeaderFixes: make([]headerFixFunc, 0, 4),
		xattrs:      true,
		logger:      slog.New(slog.DiscardHandler),
	}
}

type rebaseOption struct {
	dir string
}

func (opt rebaseOption) applyOption(option *activeConfig) {
	option.PathType = rebase(opt.dir)
}

// OptRebase returns an Option that rebases the archive entries to dir.
func OptRebase(dir string) Option {
	return &rebaseOption{dir: dir}
}

func rebase(dir string) PathFunc {
	dir = strings.TrimSuffix(dir, "/")
	return func(base string) PathRewriteFunc {
		l := len(base)
		return func(d string) string {
			if len(d) == l {
				return dir
			}
			return dir + d[l:]
		}
	}
}

// OptRelative will rebase the archive to relative paths. This is the default.
var OptRelative = new(optRelative)

type optRelative struct{}

func (opt optRelative) applyOption(option *activeConfig) {
	option.PathType = relativePath
}

func relativePath(base string) PathRewriteFunc {
	l := len(base)
	return func(d string) string {
		if len(d) == l {
			return "./"
		}
		return "." + d[l:]
	}
}

// OptAbsolute will keep the original absolute paths.
var OptAbsolute = new(optAbsolute)

type optAbsolute struct{}

func (opt optAbsolute) applyOption(option *activeConfig) {
	option.PathType = absolutePath
}

func absolutePath(base string) PathRewriteFunc {
	_ = base
	return func(d string) string { return d }
}

type setUIDOption struct {
	uid int
}

func (opt setUIDOption) applyOption(option *activeConfig) {
	option.HeaderFixes = append(option.HeaderFixes,
		func(m *tarheader.EntryMetadata) {
			m.Header.UID = int64(opt.uid)
			m.Header.Uname = ""
		})
}

// OptUID sets all file user IDs to uid.
func OptUID(uid int) Option {
	return setUIDOption{uid: uid}
}

type setGIDOption struct {
	gid int
}

func (opt setGIDOption) applyOption(option *activeConfig) {
	option.HeaderFixes = append(option.HeaderFixes,
		func(m *tarheader.EntryMetadata) {
			m.Header.GID = int64(opt.gid)
			m.Header.Gname = ""
		})
}

// OptGID sets all file group IDs to gid.
func OptGID(gid int) Option {
	return setGIDOption{gid: gid}
}

// OptNumericIDs drops user and group names.
var OptNumericIDs = new(optNumericIDs)

type optNumericIDs struct{}

func (opt optNumericIDs) applyOption(option *activeConfig) {
	option.HeaderFixes = append(option.HeaderFixes,
		func(m *tarheader.EntryMetadata) {
			m.Header.Uname = ""
			m.Header.Gname = ""
		})
}

type xattrsOption bool

func (opt xattrsOption) applyOption(option *activeConfig) {
	option.xattrs = bool(opt)
}

// OptXattrs enables or disables probing extended attributes of each file. Enabled by default.
func OptXattrs(enabled bool) Option {
	return xattrsOption(enabled)
}

type headerOptions []tarheader.Option

func (opt headerOptions) applyOption(option *activeConfig) {
	option.HeaderOptions = append(option.HeaderOptions, opt...)
}

// OptHeaderOptions passes options to the header writer.
func OptHeaderOptions(options ...tarheader.Option) Option {
	return headerOptions(options)
}

type loggerOption struct {
	logger *slog.Logger
}

func (opt loggerOption) applyOption(option *activeConfig) {
	if opt.logger != nil {
		option.logger = opt.logger
	}
}

// OptLogger sets the logger for skipped files and probed attributes.
func OptLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}

type appendFileOpt struct {
	name string
	r    io.Reader
	mode os.FileMode
}

func (opt appendFileOpt) applyOption(option *activeConfig) {
	option.Appends = append(option.Appends, opt)
}

func (opt appendFileOpt) Append(dir string, w *tarheader.Writer, options activeConfig) error {
	buf := new(bytes.Buffer)
	n, err := io.Copy(buf, opt.r)
	if err != nil {
		return err
	}
	m := &tarheader.EntryMetadata{
		Header: tarblock.Header{
			Typeflag: tarblock.TypeReg,
			Size:     n,
			Mode:     int64(opt.mode.Perm()),
			ModTime:  time.Now(),
		},
	}
	m.SetPath(options.ActivePathType(path.Join(dir, opt.name)))
	fixHeader(m, options)
	if err := w.WriteHeader(m); err != nil {
		return err
	}
	return w.WriteContent(buf.Bytes())
}

// OptAppendFile appends a file to the archive with the given name and content read from r.
func OptAppendFile(name string, mode os.FileMode, r io.Reader) Option {
	return appendFileOpt{name: name, r: r, mode: mode}
}
