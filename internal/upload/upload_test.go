package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "backup-20250102_030405.seal")
	require.NoError(t, os.WriteFile(p, []byte("sealed bytes"), 0o600))
	return p
}

func testConfig() Config {
	return Config{MaxRetries: 2, RetryBase: time.Millisecond}
}

func TestParseS3Destination(t *testing.T) {
	tests := []struct {
		dest, bucket, key string
		wantErr           bool
	}{
		{dest: "s3://bucket", bucket: "bucket", key: "a.seal"},
		{dest: "s3://bucket/", bucket: "bucket", key: "a.seal"},
		{dest: "s3://bucket/backups", bucket: "bucket", key: "backups/a.seal"},
		{dest: "s3://bucket/backups/daily/", bucket: "bucket", key: "backups/daily/a.seal"},
		{dest: "s3://", wantErr: true},
		{dest: "s3:///key", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			bucket, key, err := ParseS3Destination(tt.dest, "a.seal")
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestRcloneTarget(t *testing.T) {
	assert.Equal(t, "remote:a.seal", RcloneTarget("remote:", "a.seal"))
	assert.Equal(t, "remote:backups/a.seal", RcloneTarget("remote:backups", "a.seal"))
	assert.Equal(t, "remote:backups/a.seal", RcloneTarget("remote:backups/", "a.seal"))
}

func TestUpload_EmptyDestination(t *testing.T) {
	err := New(testConfig()).Upload(context.Background(), archiveFile(t), "")
	require.ErrorIs(t, err, common.ErrConfiguration)
}

func TestUpload_HTTP(t *testing.T) {
	file := archiveFile(t)

	t.Run("success", func(t *testing.T) {
		var gotMethod, gotCT string
		var gotBody []byte
		var gotLen int64

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			gotLen = r.ContentLength
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		err := New(testConfig()).Upload(context.Background(), file, ts.URL+"/bucket/key?X-Amz-Signature=abc")
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, gotMethod)
		assert.Equal(t, "application/octet-stream", gotCT)
		assert.Equal(t, "sealed bytes", string(gotBody))
		assert.Equal(t, int64(len("sealed bytes")), gotLen)
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var hits atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer ts.Close()

		err := New(testConfig()).Upload(context.Background(), file, ts.URL)
		require.ErrorIs(t, err, common.ErrIO)
		assert.Contains(t, err.Error(), "403")
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var hits atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		err := New(testConfig()).Upload(context.Background(), file, ts.URL)
		require.ErrorIs(t, err, common.ErrIO)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		var hits atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != "sealed bytes" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer ts.Close()

		require.NoError(t, New(testConfig()).Upload(context.Background(), file, ts.URL))
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("missing file", func(t *testing.T) {
		err := New(testConfig()).Upload(context.Background(), filepath.Join(t.TempDir(), "nope.seal"), "http://127.0.0.1:1/x")
		require.ErrorIs(t, err, common.ErrIO)
	})
}

type fakeS3 struct {
	failures int
	calls    int
	bucket   string
	key      string
	body     []byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func stubS3(t *testing.T, fake *fakeS3) *s3.Options {
	t.Helper()
	origLoad, origNew := loadDefaultAWSConfig, newS3Client
	t.Cleanup(func() { loadDefaultAWSConfig, newS3Client = origLoad, origNew })

	var opts s3.Options
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		var lo config.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		return aws.Config{Region: lo.Region, Credentials: lo.Credentials}, nil
	}
	newS3Client = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		for _, fn := range optFns {
			fn(&opts)
		}
		return fake
	}
	return &opts
}

func TestUpload_S3(t *testing.T) {
	fake := &fakeS3{failures: 1}
	opts := stubS3(t, fake)

	cfg := testConfig()
	cfg.S3 = S3Config{
		Region:          "eu-central-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	}

	file := archiveFile(t)
	require.NoError(t, New(cfg).Upload(context.Background(), file, "s3://backups/nightly"))

	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, "backups", fake.bucket)
	assert.Equal(t, "nightly/"+filepath.Base(file), fake.key)
	assert.Equal(t, "sealed bytes", string(fake.body))
	assert.Equal(t, "http://localhost:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
}

func TestUpload_S3GivesUp(t *testing.T) {
	fake := &fakeS3{failures: 100}
	stubS3(t, fake)

	err := New(testConfig()).Upload(context.Background(), archiveFile(t), "s3://bucket")
	require.ErrorIs(t, err, common.ErrIO)
	assert.Equal(t, 3, fake.calls)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "rclone")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func TestUpload_Rclone(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "args")
	cfg := testConfig()
	cfg.RcloneBinary = writeScript(t, `echo "$@" >> `+logFile)

	file := archiveFile(t)
	require.NoError(t, New(cfg).Upload(context.Background(), file, "remote:backups"))

	got, err := os.ReadFile(logFile)
	require.NoError(t, err)
	want := "copyto " + file + " remote:backups/" + filepath.Base(file)
	assert.Equal(t, want, strings.TrimSpace(string(got)))
}

func TestUpload_RcloneRetries(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "attempts")
	cfg := testConfig()
	cfg.RcloneBinary = writeScript(t, `echo attempt >> `+logFile+`; echo "remote unreachable" >&2; exit 1`)

	err := New(cfg).Upload(context.Background(), archiveFile(t), "remote:")
	require.ErrorIs(t, err, common.ErrIO)
	assert.Contains(t, err.Error(), "remote unreachable")

	got, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(got), "attempt"))
}

func TestUpload_RcloneMissing(t *testing.T) {
	cfg := testConfig()
	cfg.RcloneBinary = "sealback-test-no-such-rclone"

	err := New(cfg).Upload(context.Background(), archiveFile(t), "remote:")
	require.ErrorIs(t, err, common.ErrConfiguration)
}
