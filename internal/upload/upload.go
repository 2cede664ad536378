// Package upload copies a finished archive to remote storage. The
// destination string picks the transport:
//
//	s3://bucket/prefix         S3 PutObject
//	http://..., https://...    HTTP PUT (for example a presigned URL)
//	anything else              rclone copyto <file> <dest>/<name>
//
// Every transport is retried with exponential backoff.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Uploader sends a local file to dest.
type Uploader interface {
	Upload(ctx context.Context, localPath, dest string) error
}

type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

type Config struct {
	S3 S3Config

	// RcloneBinary defaults to "rclone" looked up in PATH.
	RcloneBinary string

	HTTPClient *http.Client

	// MaxRetries is the number of attempts after the first one.
	MaxRetries uint64
	RetryBase  time.Duration

	Logger logging.Logger
}

const (
	DefaultMaxRetries = 3
	DefaultRetryBase  = time.Second
)

// Dispatcher routes uploads to the transport matching the destination.
type Dispatcher struct {
	s3     *s3Uploader
	http   *httpUploader
	rclone *rcloneUploader

	maxRetries uint64
	retryBase  time.Duration
	log        logging.Logger
}

var _ Uploader = (*Dispatcher)(nil)

func New(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	bin := cfg.RcloneBinary
	if bin == "" {
		bin = "rclone"
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = DefaultRetryBase
	}

	return &Dispatcher{
		s3:         &s3Uploader{cfg: cfg.S3},
		http:       &httpUploader{client: client},
		rclone:     &rcloneUploader{binary: bin},
		maxRetries: cfg.MaxRetries,
		retryBase:  base,
		log:        log,
	}
}

// transport performs a single attempt. Errors worth another attempt are
// wrapped with retry.RetryableError.
type transport interface {
	name() string
	put(ctx context.Context, localPath, dest string) error
}

func (d *Dispatcher) pick(dest string) transport {
	switch {
	case strings.HasPrefix(dest, "s3://"):
		return d.s3
	case strings.HasPrefix(dest, "http://"), strings.HasPrefix(dest, "https://"):
		return d.http
	default:
		return d.rclone
	}
}

func (d *Dispatcher) Upload(ctx context.Context, localPath, dest string) error {
	if dest == "" {
		return fmt.Errorf("%w: upload destination is empty", common.ErrConfiguration)
	}

	t := d.pick(dest)
	log := d.log.With("transport", t.name())
	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.retryBase))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := t.put(ctx, localPath, dest)
		if err != nil {
			log.Warn(ctx, "upload attempt failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrConfiguration) || errors.Is(err, context.Canceled) {
			return err
		}
		return common.IOError("upload via "+t.name(), err)
	}

	log.Debug(ctx, "upload finished", "attempts", attempt)
	return nil
}
