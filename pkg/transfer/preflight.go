package transfer

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shirou/gopsutil/v4/disk"
	"gocloud.dev/blob"

	"github.com/modeldepot/core/internal/observability"
)

// Preflight probes remote artifact sizes before a transfer starts. A
// destination file that already matches the remote size is treated as
// satisfied and never re-downloaded. Probe failures are not fatal: the
// transfer proceeds with an unknown size.
type Preflight struct {
	client *retryablehttp.Client
	logger *observability.CoreLogger

	// OpenBucket opens the bucket portion of a remote URL. Tests
	// substitute it with an in-memory bucket.
	OpenBucket func(ctx context.Context, urlstr string) (*blob.Bucket, error)

	// diskFree reports free bytes on the volume holding path.
	diskFree func(path string) (uint64, error)
}

// NewPreflight builds a checker around a probe client. The client
// should carry a short timeout so a slow remote cannot stall Submit.
func NewPreflight(client *retryablehttp.Client, logger *observability.CoreLogger) *Preflight {
	return &Preflight{
		client:     client,
		logger:     logger,
		OpenBucket: blob.OpenBucket,
		diskFree:   diskFree,
	}
}

// Satisfied reports whether task.Path already holds a file of the
// remote's size, plus the probed size for the transfer to reuse. A
// local file of a different size triggers a re-download.
func (p *Preflight) Satisfied(ctx context.Context, task *Task) (size int64, ok bool) {
	size = p.ProbeSize(ctx, task)
	if size <= 0 {
		return 0, false
	}

	if info, err := os.Stat(task.Path); err == nil && !info.IsDir() {
		if info.Size() == size {
			p.logger.Debug("preflight: destination already satisfied",
				"path", task.Path, "size", size)
			return size, true
		}
		p.logger.Warn("preflight: size mismatch, downloading again",
			"path", task.Path, "local", info.Size(), "remote", size)
	}

	p.warnDiskSpace(task.Path, size)
	return size, false
}

// ProbeSize fetches the remote size without downloading the artifact.
// It returns 0 when the size cannot be determined.
func (p *Preflight) ProbeSize(ctx context.Context, task *Task) int64 {
	u, err := url.Parse(task.RemoteURL)
	if err != nil {
		return 0
	}
	switch u.Scheme {
	case "http", "https":
		return p.probeHTTP(ctx, task)
	case "s3", "gs", "azblob":
		return p.probeBlob(ctx, task)
	}
	return 0
}

func (p *Preflight) probeHTTP(ctx context.Context, task *Task) int64 {
	req, err := retryablehttp.NewRequest(http.MethodHead, task.RemoteURL, nil)
	if err != nil {
		return 0
	}
	req = req.WithContext(ctx)
	for key, value := range task.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", userAgent)
	task.Credentials.Sign(req.URL, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("preflight: size probe failed", "url", task.RemoteURL, "error", err)
		return 0
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Debug("preflight: size probe failed",
			"url", task.RemoteURL, "status", resp.Status)
		return 0
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return 0
}

func (p *Preflight) probeBlob(ctx context.Context, task *Task) int64 {
	bucketURL, objectKey, err := splitBucketURL(task.RemoteURL)
	if err != nil {
		return 0
	}
	bucket, err := p.OpenBucket(ctx, bucketURL)
	if err != nil {
		p.logger.Debug("preflight: size probe failed", "url", task.RemoteURL, "error", err)
		return 0
	}
	defer func() { _ = bucket.Close() }()

	attrs, err := bucket.Attributes(ctx, objectKey)
	if err != nil {
		p.logger.Debug("preflight: size probe failed", "url", task.RemoteURL, "error", err)
		return 0
	}
	return attrs.Size
}

// warnDiskSpace logs when the destination volume has less free space
// than the artifact needs. It never blocks the transfer.
func (p *Preflight) warnDiskSpace(dest string, size int64) {
	dir := filepath.Dir(dest)
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}

	free, err := p.diskFree(dir)
	if err != nil {
		p.logger.Debug("preflight: disk usage unavailable", "path", dir, "error", err)
		return
	}
	if free < uint64(size) {
		p.logger.CaptureWarn("preflight: destination volume may be too small",
			"path", dest, "free", free, "needed", size)
	}
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
