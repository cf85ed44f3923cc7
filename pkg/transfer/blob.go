package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/modeldepot/core/internal/observability"
)

// BlobTransfer downloads artifacts from object storage buckets using
// the s3, gs and azblob URL schemes.
type BlobTransfer struct {
	logger    *observability.CoreLogger
	stats     TransferStats
	chunkSize int64

	// OpenBucket opens the bucket portion of a remote URL. Tests
	// substitute it with an in-memory bucket.
	OpenBucket func(ctx context.Context, urlstr string) (*blob.Bucket, error)
}

func NewBlobTransfer(
	logger *observability.CoreLogger,
	stats TransferStats,
	chunkSize int64,
) *BlobTransfer {
	return &BlobTransfer{
		logger:     logger,
		stats:      stats,
		chunkSize:  chunkSize,
		OpenBucket: blob.OpenBucket,
	}
}

// Transfer streams the object to task.Path in chunks, with the same
// partial-output rules as HTTP downloads.
func (bt *BlobTransfer) Transfer(ctx context.Context, task *Task) error {
	bucketURL, objectKey, err := splitBucketURL(task.RemoteURL)
	if err != nil {
		return err
	}

	bt.logger.Debug("transfer: downloading object",
		"bucket", bucketURL, "key", objectKey, "path", task.Path)

	bucket, err := bt.OpenBucket(ctx, bucketURL)
	if err != nil {
		return fmt.Errorf("transfer: opening bucket %s: %w", bucketURL, err)
	}
	defer func() {
		if err := bucket.Close(); err != nil {
			bt.logger.CaptureError(
				fmt.Errorf("transfer: download: error closing bucket: %v", err))
		}
	}()

	reader, err := bucket.NewReader(ctx, objectKey, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("transfer: opening object %s: %w", objectKey, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			bt.logger.CaptureError(
				fmt.Errorf("transfer: download: error closing object reader: %v", err))
		}
	}()

	if err := os.MkdirAll(filepath.Dir(task.Path), os.ModePerm); err != nil {
		return err
	}

	total := reader.Size()
	if total <= 0 {
		total = task.Size
	}

	file, err := os.Create(task.Path)
	if err != nil {
		return err
	}

	written, copyErr := copyChunks(ctx, file, reader, bt.chunkSize, total,
		func(written, total int64) {
			task.progress(written, total)
			bt.stats.UpdateDownloadStats(DownloadInfo{
				Path:            task.Path,
				DownloadedBytes: written,
				TotalBytes:      total,
			})
		})

	closeErr := file.Close()

	if errors.Is(copyErr, context.Canceled) || ctx.Err() != nil {
		if err := os.Remove(task.Path); err != nil {
			bt.logger.CaptureError(
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

	bt.logger.Debug("transfer: download complete", "path", task.Path, "written", written)
	return nil
}

// splitBucketURL splits a bucket-scheme URL into the bucket URL opened
// by the blob driver and the object key within it. Query parameters
// stay with the bucket URL.
func splitBucketURL(raw string) (bucketURL, objectKey string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("transfer: parsing remote URL %s: %w", raw, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("transfer: remote URL %s names no bucket", raw)
	}
	objectKey = strings.TrimPrefix(u.Path, "/")
	if objectKey == "" {
		return "", "", fmt.Errorf("transfer: remote URL %s names no object", raw)
	}
	u.Path = ""
	return u.String(), objectKey, nil
}
