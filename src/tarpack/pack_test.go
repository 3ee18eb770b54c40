package tarpack

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-is-near/tarmeta/src/tarblock"
	"github.com/aurora-is-near/tarmeta/src/tarheader"
)

type entry struct {
	meta    *tarheader.EntryMetadata
	content []byte
}

func readAll(t *testing.T, stream []byte) map[string]entry {
	t.Helper()
	entries := make(map[string]entry)
	tr := tarheader.NewReader(bytes.NewReader(stream))
	for {
		m, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		e := entry{meta: m}
		if m.Header.HasContent() {
			e.content = make([]byte, tarblock.BlockCount(m.Header.Size)*tarblock.BlockSize)
			_, err := io.ReadFull(bytes.NewReader(stream[tr.Blocks()*tarblock.BlockSize:]), e.content)
			require.NoError(t, err)
			e.content = e.content[:m.Header.Size]
			require.NoError(t, tr.SkipContent(m.Header.Size))
		}
		entries[m.Path()] = e
	}
	return entries
}

func testTree(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	deep := filepath.Join(dir, strings.Repeat("nested-directory/", 8))
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "big.bin"), bytes.Repeat([]byte{0xab}, 70000), 0o600))
	require.NoError(t, os.Symlink("hello.txt", filepath.Join(dir, "link")))
	return dir, strings.TrimPrefix(deep, dir)
}

func TestPackRelative(t *testing.T) {
	dir, deep := testTree(t)
	buf := new(bytes.Buffer)
	require.NoError(t, Pack(dir, buf, OptXattrs(false)))

	entries := readAll(t, buf.Bytes())
	require.Contains(t, entries, "./")
	assert.Equal(t, byte(tarblock.TypeDir), entries["./"].meta.Header.Typeflag)

	hello := entries["./hello.txt"]
	require.NotNil(t, hello.meta)
	assert.Equal(t, []byte("hello world\n"), hello.content)
	assert.Equal(t, int64(0o644), hello.meta.Header.Mode)

	link := entries["./link"]
	require.NotNil(t, link.meta)
	assert.Equal(t, byte(tarblock.TypeSymlink), link.meta.Header.Typeflag)
	assert.Equal(t, "hello.txt", link.meta.LinkTarget())

	bigName := "." + deep + "/big.bin"
	require.Greater(t, len(bigName), 100)
	big := entries[bigName]
	require.NotNil(t, big.meta, "long name entry %q", bigName)
	assert.Equal(t, bigName, big.meta.LongName)
	assert.Equal(t, bytes.Repeat([]byte{0xab}, 70000), big.content)
}

func TestPackPathOptions(t *testing.T) {
	dir, _ := testTree(t)

	buf := new(bytes.Buffer)
	require.NoError(t, Pack(dir+"/", buf, OptRebase("/data/"), OptXattrs(false)))
	entries := readAll(t, buf.Bytes())
	assert.Contains(t, entries, "/data")
	assert.Contains(t, entries, "/data/hello.txt")

	buf.Reset()
	require.NoError(t, Pack(dir, buf, OptAbsolute, OptXattrs(false)))
	entries = readAll(t, buf.Bytes())
	assert.Contains(t, entries, filepath.Join(dir, "hello.txt"))
}

func TestPackIDs(t *testing.T) {
	dir, _ := testTree(t)
	buf := new(bytes.Buffer)
	require.NoError(t, Pack(dir, buf, OptUID(1000), OptGID(2000), OptNumericIDs, OptXattrs(false)))
	for name, e := range readAll(t, buf.Bytes()) {
		assert.Equal(t, int64(1000), e.meta.Header.UID, name)
		assert.Equal(t, int64(2000), e.meta.Header.GID, name)
		assert.Empty(t, e.meta.Header.Uname, name)
		assert.Empty(t, e.meta.Header.Gname, name)
	}
}

func TestPackAppendFile(t *testing.T) {
	dir, _ := testTree(t)
	buf := new(bytes.Buffer)
	require.NoError(t, Pack(dir, buf, OptXattrs(false), OptAppendFile("extra/version", 0o600, strings.NewReader("v1"))))
	e := readAll(t, buf.Bytes())["./extra/version"]
	require.NotNil(t, e.meta)
	assert.Equal(t, []byte("v1"), e.content)
	assert.Equal(t, int64(0o600), e.meta.Header.Mode)
}

func TestPackUSTAR(t *testing.T) {
	dir, _ := testTree(t)
	buf := new(bytes.Buffer)
	require.NoError(t, Pack(dir, buf, OptXattrs(false), OptHeaderOptions(tarheader.OptGNU(false))))
	for name, e := range readAll(t, buf.Bytes()) {
		assert.Empty(t, e.meta.LongName, name)
		assert.Equal(t, "ustar\x00", e.meta.Header.Magic, name)
	}
}

func TestPackWithXattrs(t *testing.T) {
	dir, _ := testTree(t)
	buf := new(bytes.Buffer)
	require.NoError(t, Pack(dir, buf))
	entries := readAll(t, buf.Bytes())
	assert.Equal(t, []byte("hello world\n"), entries["./hello.txt"].content)
}

func TestPackNoDir(t *testing.T) {
	dir, _ := testTree(t)
	err := Pack(filepath.Join(dir, "hello.txt"), io.Discard)
	assert.ErrorIs(t, err, ErrNoDir)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestPackWriteFailure(t *testing.T) {
	dir, _ := testTree(t)
	err := Pack(dir, failingWriter{})
	assert.ErrorIs(t, err, tarheader.ErrShortWrite)
}
