package main

import (
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/aurora-is-near/tarmeta/src/tarheader"
	"github.com/aurora-is-near/tarmeta/src/tarpack"
	"github.com/aurora-is-near/tarmeta/src/util"
)

var (
	rebaseDir  string
	absolute   bool
	uid        int
	gid        int
	numericIDs bool
	noXattrs   bool
	ustar      bool
	verbose    bool
)

func init() {
	flag.StringVar(&rebaseDir, "r", "", "optional directory to rebase entries to")
	flag.BoolVar(&absolute, "a", false, "keep absolute source paths")
	flag.IntVar(&uid, "uid", -1, "optional user ID for all entries")
	flag.IntVar(&gid, "gid", -1, "optional group ID for all entries")
	flag.BoolVar(&numericIDs, "numeric", false, "omit user and group names")
	flag.BoolVar(&noXattrs, "no-xattrs", false, "do not record extended attributes")
	flag.BoolVar(&ustar, "ustar", false, "write plain ustar headers without GNU long names")
	flag.BoolVar(&verbose, "v", false, "log debug output")
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		_, _ = fmt.Fprintf(os.Stderr, "%s [options] <source directory> [<destination tarfile>]\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(1)
	}
	logger := util.Logger(verbose)

	options := []tarpack.Option{tarpack.OptLogger(logger), tarpack.OptXattrs(!noXattrs)}
	switch {
	case absolute:
		options = append(options, tarpack.OptAbsolute)
	case rebaseDir != "":
		options = append(options, tarpack.OptRebase(rebaseDir))
	}
	if uid >= 0 {
		options = append(options, tarpack.OptUID(uid))
	}
	if gid >= 0 {
		options = append(options, tarpack.OptGID(gid))
	}
	if numericIDs {
		options = append(options, tarpack.OptNumericIDs)
	}
	if ustar {
		options = append(options, tarpack.OptHeaderOptions(tarheader.OptGNU(false)))
	}

	var dest string
	if len(args) > 1 {
		dest = args[1]
	}
	out, err := util.Output(dest)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: Error opening output file: %s\n", path.Base(os.Args[0]), err)
		os.Exit(1)
	}
	if err := tarpack.Pack(args[0], out, options...); err != nil {
		_ = out.Close()
		if dest != "" && dest != "-" {
			_ = os.Remove(dest)
		}
		_, _ = fmt.Fprintf(os.Stderr, "%s: Error on source directory: %s\n", path.Base(os.Args[0]), err)
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: Error closing output file: %s\n", path.Base(os.Args[0]), err)
		os.Exit(1)
	}
	os.Exit(0)
}
