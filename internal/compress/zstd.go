// Package compress wraps github.com/klauspost/compress/zstd for the archive
// payload.
package compress

import (
	"fmt"
	"io"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/klauspost/compress/zstd"
)

const (
	// Name is the compression identifier stored in headers and manifests.
	Name = "zstd"

	// DefaultLevel is used when no level is configured.
	DefaultLevel = 3

	MinLevel = 0
	MaxLevel = 22

	// maxWindow bounds decoder memory for hostile frames.
	maxWindow = 1 << 30
)

// Codec streams data through zstd. The zero value is ready to use.
type Codec struct{}

func (Codec) Name() string { return Name }

// ValidateLevel accepts the zstd level range. 0 selects the library default.
func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: compression level must be between %d and %d, got %d",
			common.ErrConfiguration, MinLevel, MaxLevel, level)
	}
	return nil
}

// Compress reads src to the end and writes a single zstd stream to dst.
func (Codec) Compress(dst io.Writer, src io.Reader, level int) error {
	if err := ValidateLevel(level); err != nil {
		return err
	}

	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(encLevel), zstd.WithEncoderConcurrency(1), zstd.WithZeroFrames(true))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		return common.IOError("compress", err)
	}
	if err := enc.Close(); err != nil {
		return common.IOError("compress", err)
	}
	return nil
}

// Decompress writes the decoded content of the zstd stream src to dst.
func (Codec) Decompress(dst io.Writer, src io.Reader) error {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxWindow(maxWindow))
	if err != nil {
		return fmt.Errorf("%w: zstd reader: %w", common.ErrFormat, err)
	}
	defer dec.Close()

	if _, err := io.Copy(dst, dec); err != nil {
		return fmt.Errorf("%w: decompress: %w", common.ErrFormat, err)
	}
	return nil
}
