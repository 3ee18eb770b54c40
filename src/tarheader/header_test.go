package tarheader

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
	"github.com/aurora-is-near/tarmeta/src/tarblock"
)

func testEntry(name string) *EntryMetadata {
	m := &EntryMetadata{
		Header: tarblock.Header{
			Mode:     0o644,
			UID:      1000,
			GID:      1000,
			ModTime:  time.Unix(1700000000, 0),
			Typeflag: tarblock.TypeReg,
			Uname:    "system",
			Gname:    "system",
		},
	}
	m.SetPath(name)
	return m
}

func fullAttributes(selinux string) extrecord.Attributes {
	return extrecord.Attributes{
		SELinuxContext: selinux,
		Capabilities: &extrecord.Capabilities{
			MagicEtc: extrecord.VFSCapRevision2 | extrecord.VFSCapFlagsEffective,
			Data:     [2]extrecord.CapabilityData{{Permitted: 0x3000, Inheritable: 0x1}, {Permitted: 0x2}},
		},
		EncryptionPolicy: &extrecord.PolicyV2{
			ContentsEncryptionMode:  extrecord.ModeAES256XTS,
			FilenamesEncryptionMode: extrecord.ModeAES256CTS,
			Flags:                   extrecord.PolicyFlagsPad16,
			MasterKeyIdentifier:     [extrecord.KeyIdentifierSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		},
		Android: extrecord.AndroidFlags{UserDefault: true, InodeCache: true, InodeCodeCache: true},
	}
}

// writeArchive writes each entry with content of its declared size and a trailer.
func writeArchive(t *testing.T, entries []*EntryMetadata, options ...Option) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	tw := NewWriter(buf, options...)
	for _, m := range entries {
		require.NoError(t, tw.WriteHeader(m))
		if m.Header.HasContent() {
			require.NoError(t, tw.WriteContent(bytes.Repeat([]byte{'d'}, int(m.Header.Size))))
		}
	}
	require.NoError(t, tw.Close())
	require.Equal(t, int64(buf.Len()), tw.Blocks()*tarblock.BlockSize)
	return buf.Bytes()
}

func TestLongNameRoundTrip(t *testing.T) {
	for _, n := range []int{101, 511, 512, 513, 1500} {
		name := strings.Repeat("d/", n/2) + strings.Repeat("f", n%2)
		require.Len(t, name, n)
		m := testEntry(name)
		m.Header.Typeflag = tarblock.TypeSymlink
		m.SetLinkTarget("/system/" + strings.Repeat("l", 120))

		stream := writeArchive(t, []*EntryMetadata{m})
		tr := NewReader(bytes.NewReader(stream))
		got, err := tr.Next()
		require.NoError(t, err)
		assert.Equal(t, name, got.LongName)
		assert.Equal(t, name, got.Path())
		assert.Equal(t, m.LinkTarget(), got.LinkTarget())

		// Long link pair, long name pair, real header.
		want := 1 + 1 + 1 + tarblock.BlockCount(int64(n)) + 1
		assert.Equal(t, want, tr.Blocks(), "name length %d", n)

		_, err = tr.Next()
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestAttributesRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		selinux string
		blocks  int64
	}{
		{"one pair", "u:object_r:system_file:s0", 3},
		{"split pairs", "u:object_r:" + strings.Repeat("c", 440) + ":s0", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testEntry("system/bin/app_process64")
			m.Header.Size = 1000
			m.Attributes = fullAttributes(tt.selinux)

			stream := writeArchive(t, []*EntryMetadata{m, testEntry("system/bin/sh")})
			tr := NewReader(bytes.NewReader(stream))
			got, err := tr.Next()
			require.NoError(t, err)
			assert.Equal(t, tt.blocks, tr.Blocks())
			assert.Equal(t, m.Attributes, got.Attributes)
			assert.Equal(t, m.Path(), got.Path())
			assert.Equal(t, m.Header.Size, got.Header.Size)
			assert.Equal(t, m.Header.ModTime, got.Header.ModTime)
			assert.Equal(t, byte(tarblock.TypeReg), got.Header.Typeflag)

			require.NoError(t, tr.SkipContent(got.Header.Size))
			next, err := tr.Next()
			require.NoError(t, err)
			assert.True(t, next.Attributes.Empty(), "attributes do not leak into the next entry")
			assert.Equal(t, "system/bin/sh", next.Path())
		})
	}
}

func TestSELinuxAndCapabilitiesSplit(t *testing.T) {
	m := testEntry("vendor/bin/hw/service")
	m.SELinuxContext = "u:object_r:" + strings.Repeat("v", 450) + ":s0"
	m.Capabilities = fullAttributes("").Capabilities

	stream := writeArchive(t, []*EntryMetadata{m})
	// Two extended pairs precede the real header.
	for i := 0; i < 2; i++ {
		var b tarblock.Block
		copy(b[:], stream[2*i*tarblock.BlockSize:])
		assert.Equal(t, byte(tarblock.TypeExtended), b.Typeflag(), "pair %d", i)
	}

	got, err := NewReader(bytes.NewReader(stream)).Next()
	require.NoError(t, err)
	assert.Equal(t, m.SELinuxContext, got.SELinuxContext)
	assert.Equal(t, m.Capabilities, got.Capabilities)
	assert.Equal(t, m.Path(), got.Path())
}

func TestChecksumMismatch(t *testing.T) {
	stream := writeArchive(t, []*EntryMetadata{testEntry("etc/hosts")})
	stream[3] ^= 0x20

	_, err := NewReader(bytes.NewReader(stream)).Next()
	require.ErrorIs(t, err, ErrFormat)

	got, err := NewReader(bytes.NewReader(stream), OptIgnoreChecksum).Next()
	require.NoError(t, err)
	assert.NotEqual(t, "etc/hosts", got.Path())
}

func TestMagicValidation(t *testing.T) {
	stream := writeArchive(t, []*EntryMetadata{testEntry("etc/hosts")})

	_, err := NewReader(bytes.NewReader(stream), OptCheckMagic).Next()
	require.NoError(t, err)
	_, err = NewReader(bytes.NewReader(stream), OptCheckVersion).Next()
	assert.ErrorIs(t, err, ErrFormat, "GNU headers carry no POSIX version")

	stream = writeArchive(t, []*EntryMetadata{testEntry("etc/hosts")}, OptGNU(false))
	_, err = NewReader(bytes.NewReader(stream), OptCheckMagic, OptCheckVersion).Next()
	assert.NoError(t, err)
}

func TestEndOfArchive(t *testing.T) {
	stream := writeArchive(t, []*EntryMetadata{testEntry("a")})
	stream = append(stream, []byte("trailing garbage")...)
	r := bytes.NewReader(stream)

	tr := NewReader(r)
	_, err := tr.Next()
	require.NoError(t, err)
	_, err = tr.Next()
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(3), tr.Blocks())
	assert.Equal(t, len("trailing garbage"), r.Len())
}

func TestIgnoreEOT(t *testing.T) {
	first := writeArchive(t, []*EntryMetadata{testEntry("a")})
	second := writeArchive(t, []*EntryMetadata{testEntry("b")})

	var names []string
	tr := NewReader(bytes.NewReader(append(first, second...)), OptIgnoreEOT)
	for {
		m, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, m.Path())
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

// rawStream assembles header blocks and data blocks by hand.
type rawStream struct {
	t   *testing.T
	buf bytes.Buffer
	bw  *tarblock.Writer
}

func newRawStream(t *testing.T) *rawStream {
	s := &rawStream{t: t}
	s.bw = tarblock.NewWriter(&s.buf)
	return s
}

func (s *rawStream) header(typeflag byte, size int64) *rawStream {
	b, err := tarblock.Encode(tarblock.Header{Name: "entry", Mode: 0o600, Typeflag: typeflag, Size: size}, tarblock.FormatGNU)
	require.NoError(s.t, err)
	require.NoError(s.t, s.bw.WriteBlock(b))
	return s
}

func (s *rawStream) data(p []byte) *rawStream {
	require.NoError(s.t, s.bw.WriteRaw(p))
	return s
}

func (s *rawStream) bytes() []byte {
	return s.buf.Bytes()
}

func TestOversizedExtendedHeaderSkipped(t *testing.T) {
	for _, size := range []int64{511, 512, 1300} {
		records := extrecord.AppendRecord(nil, extrecord.TagSELinux, []byte("u:object_r:ignored:s0"))
		payload := append(records, bytes.Repeat([]byte{'z'}, int(size)-len(records))...)
		sel := extrecord.AppendRecord(nil, extrecord.TagSELinux, []byte("u:object_r:kept:s0"))
		stream := newRawStream(t).
			header(tarblock.TypeExtended, size).data(payload).
			header(tarblock.TypeExtended, int64(len(sel))).data(sel).
			header(tarblock.TypeReg, 0).
			bytes()

		logs := new(bytes.Buffer)
		tr := NewReader(bytes.NewReader(stream), OptLogger(slog.New(slog.NewTextHandler(logs, nil))))
		got, err := tr.Next()
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, "u:object_r:kept:s0", got.SELinuxContext)
		assert.Equal(t, "entry", got.Path())
		assert.Equal(t, int64(len(stream)/tarblock.BlockSize), tr.Blocks())
		assert.Contains(t, logs.String(), "extended header is too long")
	}
}

func TestPolicyHeader(t *testing.T) {
	policy := &extrecord.PolicyV2{ContentsEncryptionMode: 1, FilenamesEncryptionMode: 4}
	policy.MasterKeyIdentifier[0] = 0xab
	records, err := extrecord.Encode(&extrecord.Attributes{EncryptionPolicy: policy}, extrecord.AllFeatures)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]

	stream := newRawStream(t).
		header(tarblock.TypePolicy, int64(len(rec))).data(rec).
		header(tarblock.TypePolicy, 600).data(make([]byte, 600)).
		header(tarblock.TypeReg, 0).
		bytes()

	tr := NewReader(bytes.NewReader(stream))
	got, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, policy, got.EncryptionPolicy)
	assert.Equal(t, "entry", got.Path())
	assert.Equal(t, int64(6), tr.Blocks())

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLongLinkOverflow(t *testing.T) {
	stream := newRawStream(t).header(tarblock.TypeLongLink, math.MaxInt64).bytes()
	_, err := NewReader(bytes.NewReader(stream)).Next()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestLongNameAllocationBound(t *testing.T) {
	stream := writeArchive(t, []*EntryMetadata{testEntry(strings.Repeat("n", 3000))})
	_, err := NewReader(bytes.NewReader(stream), OptMaxLongNameSize(1024)).Next()
	assert.ErrorIs(t, err, ErrAllocation)

	_, err = NewReader(bytes.NewReader(stream), OptMaxLongNameSize(3072)).Next()
	assert.NoError(t, err)
}

func TestTruncatedSequence(t *testing.T) {
	stream := writeArchive(t, []*EntryMetadata{testEntry(strings.Repeat("n", 700))})
	for _, blocks := range []int{1, 2, 3} {
		_, err := NewReader(bytes.NewReader(stream[:blocks*tarblock.BlockSize])).Next()
		assert.ErrorIs(t, err, ErrShortRead, "%d blocks", blocks)
	}

	// The end of archive marker inside a header sequence.
	stream = newRawStream(t).header(tarblock.TypeLongName, 5).data([]byte("hello")).data(make([]byte, 2*tarblock.BlockSize)).bytes()
	_, err := NewReader(bytes.NewReader(stream)).Next()
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestUnresolvedSequence(t *testing.T) {
	stream := newRawStream(t).
		header(tarblock.TypeLongLink, 4).data([]byte("link")).
		header(tarblock.TypeLongName, 4).data([]byte("name")).
		header(tarblock.TypeLongLink, 4).data([]byte("more")).
		header(tarblock.TypeReg, 0).
		bytes()
	_, err := NewReader(bytes.NewReader(stream)).Next()
	assert.ErrorIs(t, err, ErrFormat)

	m := testEntry("a")
	m.Attributes = fullAttributes("u:object_r:" + strings.Repeat("c", 440) + ":s0")
	stream = writeArchive(t, []*EntryMetadata{m})
	_, err = NewReader(bytes.NewReader(stream), OptMaxExtendedHeaders(1)).Next()
	assert.ErrorIs(t, err, ErrFormat)
	_, err = NewReader(bytes.NewReader(stream), OptMaxExtendedHeaders(2)).Next()
	assert.NoError(t, err)
}

func TestFeatureSelection(t *testing.T) {
	m := testEntry("data/app/base.apk")
	m.Attributes = fullAttributes("u:object_r:apk_data_file:s0")

	stream := writeArchive(t, []*EntryMetadata{m}, OptFeatures(extrecord.FeatureSELinux|extrecord.FeatureAndroidXattrs))
	got, err := NewReader(bytes.NewReader(stream)).Next()
	require.NoError(t, err)
	assert.Equal(t, m.SELinuxContext, got.SELinuxContext)
	assert.Equal(t, m.Android, got.Android)
	assert.Nil(t, got.Capabilities)
	assert.Nil(t, got.EncryptionPolicy)

	stream = writeArchive(t, []*EntryMetadata{m})
	got, err = NewReader(bytes.NewReader(stream), OptFeatures(extrecord.FeatureCapabilities)).Next()
	require.NoError(t, err)
	assert.Equal(t, extrecord.Attributes{Capabilities: m.Capabilities}, got.Attributes)
}

func TestGNUDisabled(t *testing.T) {
	name := strings.Repeat("p", 150)
	logs := new(bytes.Buffer)
	stream := writeArchive(t, []*EntryMetadata{testEntry(name)},
		OptGNU(false), OptLogger(slog.New(slog.NewTextHandler(logs, nil))))
	assert.Contains(t, logs.String(), "GNU extensions disabled")

	tr := NewReader(bytes.NewReader(stream))
	got, err := tr.Next()
	require.NoError(t, err)
	assert.Empty(t, got.LongName)
	assert.Equal(t, name[:nameSize], got.Path())
	assert.Equal(t, "ustar\x00", got.Header.Magic)
	assert.Equal(t, int64(1), tr.Blocks())

	m := testEntry("big")
	m.Header.Size = 1 << 40
	err = NewWriter(io.Discard, OptGNU(false)).WriteHeader(m)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestWriterRejectsBeforeWriting(t *testing.T) {
	m := testEntry(strings.Repeat("n", 300))
	m.SELinuxContext = "u:r:bad\n"
	buf := new(bytes.Buffer)
	tw := NewWriter(buf)
	assert.ErrorIs(t, tw.WriteHeader(m), extrecord.ErrInvalidRecord)
	assert.Zero(t, buf.Len())

	m.SELinuxContext = strings.Repeat("c", 500)
	assert.ErrorIs(t, tw.WriteHeader(m), extrecord.ErrRecordTooLarge)
	assert.Zero(t, buf.Len())
}

type limitWriter struct {
	n int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		n := w.n
		w.n = 0
		return n, nil
	}
	w.n -= len(p)
	return len(p), nil
}

func TestShortWrite(t *testing.T) {
	m := testEntry(strings.Repeat("n", 300))
	m.Attributes = fullAttributes("u:object_r:system_file:s0")
	for _, limit := range []int{0, 1000, 2000} {
		err := NewWriter(&limitWriter{n: limit}).WriteHeader(m)
		assert.ErrorIs(t, err, ErrShortWrite, "limit %d", limit)
	}
}

func TestStdlibReadsOurArchive(t *testing.T) {
	long := testEntry("system/" + strings.Repeat("x", 200))
	long.Header.Size = 700
	labeled := testEntry("system/etc/hosts")
	labeled.SELinuxContext = "u:object_r:system_file:s0"

	stream := writeArchive(t, []*EntryMetadata{long, labeled})
	tr := tar.NewReader(bytes.NewReader(stream))

	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, long.Path(), hdr.Name)
	assert.Equal(t, int64(700), hdr.Size)
	data, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'d'}, 700), data)

	hdr, err = tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "system/etc/hosts", hdr.Name)
	assert.Equal(t, labeled.SELinuxContext, hdr.PAXRecords["RHT.security.selinux"])

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadStdlibArchive(t *testing.T) {
	name := "data/" + strings.Repeat("y", 300)
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Linkname: "target/" + strings.Repeat("t", 150),
		Typeflag: tar.TypeSymlink,
		Mode:     0o777,
		ModTime:  time.Unix(1700000000, 0),
		Format:   tar.FormatGNU,
	}))
	require.NoError(t, tw.Close())

	got, err := NewReader(bytes.NewReader(buf.Bytes())).Next()
	require.NoError(t, err)
	assert.Equal(t, name, got.Path())
	assert.Equal(t, "target/"+strings.Repeat("t", 150), got.LinkTarget())
	assert.Equal(t, byte(tarblock.TypeSymlink), got.Header.Typeflag)
}

func TestMetadataPath(t *testing.T) {
	m := new(EntryMetadata)
	m.Header.Prefix = "usr/share"
	m.Header.Name = "doc"
	assert.Equal(t, "usr/share/doc", m.Path())

	m.SetPath(strings.Repeat("q", 120))
	assert.Empty(t, m.Header.Prefix)
	assert.Len(t, m.Header.Name, nameSize)
	assert.Len(t, m.Path(), 120)

	m.SetPath("short")
	assert.Empty(t, m.LongName)
	assert.Equal(t, "short", m.Path())

	m.SELinuxContext = "ctx"
	m.Reset()
	assert.Equal(t, EntryMetadata{}, *m)
}
