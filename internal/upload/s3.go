package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/sethvargo/go-retry"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3Client = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type s3Uploader struct {
	cfg    S3Config
	client s3API
}

func (u *s3Uploader) name() string { return "s3" }

func (u *s3Uploader) getClient(ctx context.Context) (s3API, error) {
	if u.client != nil {
		return u.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if u.cfg.Region != "" {
		opts = append(opts, config.WithRegion(u.cfg.Region))
	}
	if u.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			u.cfg.AccessKeyID,
			u.cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", common.ErrConfiguration, err)
	}

	u.client = newS3Client(awsCfg, func(o *s3.Options) {
		if u.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(u.cfg.Endpoint)
		}
		o.UsePathStyle = u.cfg.UsePathStyle
	})
	return u.client, nil
}

// ParseS3Destination splits s3://bucket/prefix into bucket and the object
// key for a file called base.
func ParseS3Destination(dest, base string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(dest, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: s3 destination %q has no bucket", common.ErrConfiguration, dest)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return bucket, base, nil
	}
	return bucket, path.Join(prefix, base), nil
}

func (u *s3Uploader) put(ctx context.Context, localPath, dest string) error {
	bucket, key, err := ParseS3Destination(dest, filepath.Base(localPath))
	if err != nil {
		return err
	}
	client, err := u.getClient(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return common.IOError("open archive", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return common.IOError("stat archive", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return retry.RetryableError(fmt.Errorf("put s3://%s/%s: %w", bucket, key, err))
	}
	return nil
}
