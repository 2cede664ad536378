package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/sethvargo/go-retry"
)

type httpUploader struct {
	client *http.Client
}

func (u *httpUploader) name() string { return "http" }

// put sends the file with a single PUT request, the way presigned object
// storage URLs expect it.
func (u *httpUploader) put(ctx context.Context, localPath, url string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return common.IOError("open archive", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return common.IOError("stat archive", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return fmt.Errorf("%w: upload url: %w", common.ErrConfiguration, err)
	}
	req.ContentLength = fi.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retry.RetryableError(err)
	}
	return err
}
