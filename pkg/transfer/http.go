package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/modeldepot/core/internal/observability"
	"github.com/modeldepot/core/internal/version"
)

const userAgent = "modeldepot-core/" + version.Version

// HTTPTransfer downloads artifacts over http(s).
type HTTPTransfer struct {
	client    *retryablehttp.Client
	logger    *observability.CoreLogger
	stats     TransferStats
	chunkSize int64
}

func NewHTTPTransfer(
	client *retryablehttp.Client,
	logger *observability.CoreLogger,
	stats TransferStats,
	chunkSize int64,
) *HTTPTransfer {
	return &HTTPTransfer{
		client:    client,
		logger:    logger,
		stats:     stats,
		chunkSize: chunkSize,
	}
}

// Transfer streams the remote file to task.Path in chunks. A cancelled
// download removes its partial output; a failed one leaves it in place.
func (ft *HTTPTransfer) Transfer(ctx context.Context, task *Task) error {
	ft.logger.Debug("transfer: downloading file", "path", task.Path, "url", task.RemoteURL)

	if err := os.MkdirAll(filepath.Dir(task.Path), os.ModePerm); err != nil {
		return err
	}

	req, err := retryablehttp.NewRequest(http.MethodGet, task.RemoteURL, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	for key, value := range task.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", userAgent)
	task.Credentials.Sign(req.URL, req.Header)

	resp, err := ft.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			ft.logger.CaptureError(
				fmt.Errorf("transfer: download: error closing response reader: %v", err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transfer: download of %s failed: %s", task.RemoteURL, resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = task.Size
	}

	file, err := os.Create(task.Path)
	if err != nil {
		return err
	}

	written, copyErr := copyChunks(ctx, file, resp.Body, ft.chunkSize, total,
		func(written, total int64) {
			task.progress(written, total)
			ft.stats.UpdateDownloadStats(DownloadInfo{
				Path:            task.Path,
				DownloadedBytes: written,
				TotalBytes:      total,
			})
		})

	closeErr := file.Close()

	if errors.Is(copyErr, context.Canceled) || ctx.Err() != nil {
		if err := os.Remove(task.Path); err != nil {
			ft.logger.CaptureError(
				fmt.Errorf("transfer: download: error removing partial file %s: %v", task.Path, err))
		}
		return context.Canceled
	}
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}

	ft.logger.Debug("transfer: download complete", "path", task.Path, "written", written)
	return nil
}
