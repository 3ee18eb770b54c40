package main

import (
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/aurora-is-near/tarmeta/src/tarheader"
	"github.com/aurora-is-near/tarmeta/src/tarlist"
	"github.com/aurora-is-near/tarmeta/src/util"
)

var (
	checkMagic     bool
	checkVersion   bool
	ignoreChecksum bool
	ignoreEOT      bool
	verbose        bool
)

func init() {
	flag.BoolVar(&checkMagic, "check-magic", false, "reject headers without ustar magic")
	flag.BoolVar(&checkVersion, "check-version", false, "reject headers without POSIX version")
	flag.BoolVar(&ignoreChecksum, "ignore-checksum", false, "do not validate header checksums")
	flag.BoolVar(&ignoreEOT, "i", false, "ignore zero blocks instead of stopping at the end of archive marker")
	flag.BoolVar(&verbose, "v", false, "log detected extensions")
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		_, _ = fmt.Fprintf(os.Stderr, "%s [options] <input.tar>\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(1)
	}
	options := []tarheader.Option{tarheader.OptLogger(util.Logger(verbose))}
	if checkMagic {
		options = append(options, tarheader.OptCheckMagic)
	}
	if checkVersion {
		options = append(options, tarheader.OptCheckVersion)
	}
	if ignoreChecksum {
		options = append(options, tarheader.OptIgnoreChecksum)
	}
	if ignoreEOT {
		options = append(options, tarheader.OptIgnoreEOT)
	}

	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%s: Error opening archive: %s\n", path.Base(os.Args[0]), err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	if err := tarlist.List(in, os.Stdout, options...); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: Error reading archive: %s\n", path.Base(os.Args[0]), err)
		os.Exit(1)
	}
}
