package main

import (
	"fmt"
	"os"
	"path"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/aurora-is-near/tarmeta/src/tarlist"
	"github.com/aurora-is-near/tarmeta/src/util"
)

// run writes the digests of tarfile to dest and closes it.
func run(tarfile, dest string) error {
	out, err := util.Output(dest)
	if err != nil {
		return err
	}
	if err := tarlist.ReadDigests(tarfile, out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInternal, "closing output")
	}
	return nil
}

func main() {
	if len(os.Args) != 3 {
		_, _ = fmt.Fprintf(os.Stderr, "%s <input.tar> <output.hashfile>\n", path.Base(os.Args[0]))
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s ERROR: %s\n", path.Base(os.Args[0]), err)
		os.Exit(1)
	}
}
