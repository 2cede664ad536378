// Package manifest builds, stores and validates the versioned metadata
// record embedded as the first entry of every archive payload.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/sealback/internal/archive"
	"github.com/dmitrijs2005/sealback/internal/common"
)

const (
	// Version is the only manifest version this tool understands.
	Version = 1

	FormatTar       = "tar"
	CompressionZstd = "zstd"
	ChecksumSHA256  = "sha256"

	TypeFile      = "file"
	TypeDirectory = "directory"
)

// Tool names the program that wrote the archive.
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Archive describes how the payload is packed.
type Archive struct {
	Format           string `json:"format"`
	Compression      string `json:"compression"`
	CompressionLevel int    `json:"compression_level"`
}

// Source is one user supplied path and its kind at archiving time.
type Source struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// Checksum names the digest algorithm. No digest value is stored.
type Checksum struct {
	Algorithm string `json:"algorithm"`
}

// Manifest is the metadata record stored as the first entry of the payload
// tar, under common.ManifestName. It is serialized as indented JSON.
//
// A Manifest is produced by Build when an archive is created and read back
// with ReadFromTar during restore, where Validate must accept it before any
// member is extracted. Readers reject any ManifestVersion other than Version with
// common.ErrUnsupportedVersion.
//
// Example:
//
//	m, err := manifest.Build([]string{"docs"}, manifest.CompressionZstd, 3, "sealback", "1.0.0")
//	if err != nil {
//	    return err
//	}
//	data, err := manifest.Marshal(m)
type Manifest struct {
	ManifestVersion int       `json:"manifest_version"`
	Tool            Tool      `json:"tool"`
	CreatedAt       time.Time `json:"created_at"`
	Archive         Archive   `json:"archive"`
	Sources         []Source  `json:"sources"`
	Checksum        Checksum  `json:"checksum"`
}

var now = func() time.Time { return time.Now().UTC() }

// Build assembles a manifest for sources, classifying each one by a stat
// that follows symlinks. Sources keep their input order.
func Build(sources []string, compression string, level int, toolName, toolVersion string) (*Manifest, error) {
	entries := make([]Source, 0, len(sources))
	for _, src := range sources {
		fi, err := os.Stat(src)
		if err != nil {
			return nil, common.IOError("stat source", err)
		}
		kind := TypeFile
		if fi.IsDir() {
			kind = TypeDirectory
		}
		entries = append(entries, Source{Path: src, Type: kind})
	}

	return &Manifest{
		ManifestVersion: Version,
		Tool:            Tool{Name: toolName, Version: toolVersion},
		CreatedAt:       now(),
		Archive: Archive{
			Format:           FormatTar,
			Compression:      compression,
			CompressionLevel: level,
		},
		Sources:  entries,
		Checksum: Checksum{Algorithm: ChecksumSHA256},
	}, nil
}

// Validate checks m and reports the first violated rule.
func Validate(m *Manifest) error {
	if m == nil {
		return fmt.Errorf("%w: manifest is empty", common.ErrManifest)
	}
	if m.ManifestVersion != Version {
		return fmt.Errorf("%w: version %d (this tool reads version %d)", common.ErrUnsupportedVersion, m.ManifestVersion, Version)
	}
	if m.Archive.Format != FormatTar {
		return fmt.Errorf("%w: unsupported archive format %q", common.ErrManifest, m.Archive.Format)
	}
	if m.Archive.Compression != CompressionZstd {
		return fmt.Errorf("%w: unsupported compression %q", common.ErrManifest, m.Archive.Compression)
	}
	for i, s := range m.Sources {
		if s.Path == "" {
			return fmt.Errorf("%w: source %d has no path", common.ErrManifest, i)
		}
		if s.Type != TypeFile && s.Type != TypeDirectory {
			return fmt.Errorf("%w: source %q has unknown type %q", common.ErrManifest, s.Path, s.Type)
		}
	}
	return nil
}

// Parse decodes a manifest document. A document without manifest_version is
// rejected here since there is no version to report.
func Parse(data []byte) (*Manifest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrManifest, err)
	}
	if _, ok := fields["manifest_version"]; !ok {
		return nil, fmt.Errorf("%w: missing manifest_version", common.ErrManifest)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrManifest, err)
	}
	return &m, nil
}

// Marshal renders m as indented JSON.
func Marshal(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// WriteFile stores m as common.ManifestName inside dir and returns its path.
func WriteFile(m *Manifest, dir string) (string, error) {
	data, err := Marshal(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, common.ManifestName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", common.IOError("write manifest", err)
	}
	return path, nil
}

// ReadFromTar reads only the manifest entry from an uncompressed tar stream.
func ReadFromTar(r io.Reader) (*Manifest, error) {
	var buf bytes.Buffer
	if err := archive.ReadEntry(r, common.ManifestName, &buf); err != nil {
		if errors.Is(err, archive.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %s not found in archive", common.ErrManifest, common.ManifestName)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrManifest, err)
	}
	return Parse(buf.Bytes())
}
