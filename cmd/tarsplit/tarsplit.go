package main

import (
	"fmt"
	"os"
	"path"

	"github.com/aurora-is-near/tarmeta/src/tarlist"
)

func main() {
	if len(os.Args) != 2 {
		_, _ = fmt.Fprintf(os.Stderr, "%s <input.tar>\n", path.Base(os.Args[0]))
		_, _ = fmt.Fprintf(os.Stderr, "Splits the archive on an entry boundary near its middle into <input.tar> and <input.tar>.part2.\n")
		os.Exit(1)
	}
	if err := tarlist.SplitMiddle(os.Args[1]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s ERR: %s\n", path.Base(os.Args[0]), err)
		os.Exit(1)
	}
	os.Exit(0)
}
