package manifest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/sealback/internal/archive"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T) time.Time {
	t.Helper()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	old := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = old })
	return ts
}

func validManifest() *Manifest {
	return &Manifest{
		ManifestVersion: Version,
		Tool:            Tool{Name: "sealback", Version: "1.0.0"},
		Archive:         Archive{Format: FormatTar, Compression: CompressionZstd, CompressionLevel: 3},
		Sources:         []Source{{Path: "a.txt", Type: TypeFile}},
		Checksum:        Checksum{Algorithm: ChecksumSHA256},
	}
}

func TestBuild(t *testing.T) {
	ts := fixedClock(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0o644))
	sub := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(sub, 0o755))

	m, err := Build([]string{file, sub}, CompressionZstd, 7, "sealback", "1.2.3")
	require.NoError(t, err)

	want := &Manifest{
		ManifestVersion: 1,
		Tool:            Tool{Name: "sealback", Version: "1.2.3"},
		CreatedAt:       ts,
		Archive:         Archive{Format: "tar", Compression: "zstd", CompressionLevel: 7},
		Sources: []Source{
			{Path: file, Type: "file"},
			{Path: sub, Type: "directory"},
		},
		Checksum: Checksum{Algorithm: "sha256"},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, Validate(m))
}

func TestBuild_FollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "real"), 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real"), link))

	m, err := Build([]string{link}, CompressionZstd, 3, "sealback", "dev")
	require.NoError(t, err)
	assert.Equal(t, TypeDirectory, m.Sources[0].Type)
}

func TestBuild_MissingSource(t *testing.T) {
	_, err := Build([]string{filepath.Join(t.TempDir(), "missing")}, CompressionZstd, 3, "sealback", "dev")
	require.ErrorIs(t, err, common.ErrIO)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Manifest)
		wantErr error
	}{
		{name: "valid", mutate: func(m *Manifest) {}},
		{name: "no sources", mutate: func(m *Manifest) { m.Sources = nil }},
		{name: "version 2", mutate: func(m *Manifest) { m.ManifestVersion = 2 }, wantErr: common.ErrUnsupportedVersion},
		{name: "version 0", mutate: func(m *Manifest) { m.ManifestVersion = 0 }, wantErr: common.ErrUnsupportedVersion},
		{name: "gzip", mutate: func(m *Manifest) { m.Archive.Compression = "gzip" }, wantErr: common.ErrManifest},
		{name: "zip format", mutate: func(m *Manifest) { m.Archive.Format = "zip" }, wantErr: common.ErrManifest},
		{name: "source without path", mutate: func(m *Manifest) { m.Sources[0].Path = "" }, wantErr: common.ErrManifest},
		{name: "source bad type", mutate: func(m *Manifest) { m.Sources[0].Type = "fifo" }, wantErr: common.ErrManifest},
		{
			name: "version checked first",
			mutate: func(m *Manifest) {
				m.ManifestVersion = 2
				m.Archive.Compression = "gzip"
			},
			wantErr: common.ErrUnsupportedVersion,
		},
		{
			name: "format before compression",
			mutate: func(m *Manifest) {
				m.Archive.Format = "zip"
				m.Archive.Compression = "gzip"
			},
			wantErr: common.ErrManifest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)
			err := Validate(m)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_VersionIsNotManifestError(t *testing.T) {
	m := validManifest()
	m.ManifestVersion = 2
	err := Validate(m)
	assert.False(t, errors.Is(err, common.ErrManifest))

	assert.ErrorIs(t, Validate(nil), common.ErrManifest)
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{
		"manifest_version": 1,
		"tool": {"name": "sealback", "version": "0.1.0"},
		"created_at": "2025-01-02T03:04:05.123456+00:00",
		"archive": {"format": "tar", "compression": "zstd", "compression_level": 3},
		"sources": [{"path": "docs", "type": "directory"}],
		"checksum": {"algorithm": "sha256"}
	}`))
	require.NoError(t, err)
	require.NoError(t, Validate(m))
	assert.Equal(t, []Source{{Path: "docs", Type: TypeDirectory}}, m.Sources)
	assert.Equal(t, 2025, m.CreatedAt.Year())

	_, err = Parse([]byte(`{"archive": {"format": "tar"}}`))
	require.ErrorIs(t, err, common.ErrManifest)

	_, err = Parse([]byte(`not json`))
	require.ErrorIs(t, err, common.ErrManifest)

	m, err = Parse([]byte(`{"manifest_version": 2}`))
	require.NoError(t, err)
	require.ErrorIs(t, Validate(m), common.ErrUnsupportedVersion)
}

func TestWriteFileAndReadFromTar(t *testing.T) {
	fixedClock(t)
	m := validManifest()
	m.CreatedAt = now()

	staging := t.TempDir()
	path, err := WriteFile(m, staging)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(staging, common.ManifestName), path)

	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("abc"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, archive.Build(context.Background(), &buf, base, []string{filepath.Join(base, "a.txt")},
		archive.Extra{Path: path, Name: common.ManifestName}))

	got, err := ReadFromTar(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestReadFromTar_Missing(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("abc"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, archive.Build(context.Background(), &buf, base, []string{filepath.Join(base, "a.txt")}))

	_, err := ReadFromTar(bytes.NewReader(buf.Bytes()))
	require.ErrorIs(t, err, common.ErrManifest)
}

func TestMarshal_Indented(t *testing.T) {
	data, err := Marshal(validManifest())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"manifest_version\": 1,")
}
