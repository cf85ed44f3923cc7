package transfer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/modeldepot/core/internal/observability"
	"github.com/modeldepot/core/pkg/transfer"
)

func newBlobTransfer(bucket *blob.Bucket) (*transfer.BlobTransfer, *string) {
	bt := transfer.NewBlobTransfer(
		observability.NewNoOpLogger(),
		transfer.NewTransferStats(),
		64,
	)
	opened := new(string)
	bt.OpenBucket = func(ctx context.Context, urlstr string) (*blob.Bucket, error) {
		*opened = urlstr
		return bucket, nil
	}
	return bt, opened
}

func TestBlobTransferDownloadsObject(t *testing.T) {
	content := []byte(strings.Repeat("weights", 100))
	bucket := memblob.OpenBucket(nil)
	require.NoError(t,
		bucket.WriteAll(context.Background(), "models/tiny.bin", content, nil))

	bt, opened := newBlobTransfer(bucket)
	path := filepath.Join(t.TempDir(), "models", "tiny.bin")
	var lastWritten, lastTotal int64
	task := &transfer.Task{
		Key:       path,
		RemoteURL: "s3://bucket/models/tiny.bin?region=us-west-2",
		Path:      path,
		Progress: func(written, total int64) {
			lastWritten, lastTotal = written, total
		},
	}

	require.NoError(t, bt.Transfer(context.Background(), task))

	assert.Equal(t, "s3://bucket?region=us-west-2", *opened)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, int64(len(content)), lastWritten)
	assert.Equal(t, int64(len(content)), lastTotal)
}

func TestBlobTransferMissingObject(t *testing.T) {
	bucket := memblob.OpenBucket(nil)

	bt, _ := newBlobTransfer(bucket)
	path := filepath.Join(t.TempDir(), "tiny.bin")
	task := &transfer.Task{
		Key:       path,
		RemoteURL: "s3://bucket/models/missing.bin",
		Path:      path,
	}

	err := bt.Transfer(context.Background(), task)

	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestBlobTransferCancelled(t *testing.T) {
	content := []byte(strings.Repeat("weights", 100))
	bucket := memblob.OpenBucket(nil)
	require.NoError(t,
		bucket.WriteAll(context.Background(), "models/tiny.bin", content, nil))

	bt, _ := newBlobTransfer(bucket)
	path := filepath.Join(t.TempDir(), "tiny.bin")
	task := &transfer.Task{
		Key:       path,
		RemoteURL: "s3://bucket/models/tiny.bin",
		Path:      path,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bt.Transfer(ctx, task)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, path)
}

func TestBlobTransferRejectsKeylessURL(t *testing.T) {
	bt, _ := newBlobTransfer(memblob.OpenBucket(nil))
	path := filepath.Join(t.TempDir(), "tiny.bin")
	task := &transfer.Task{Key: path, RemoteURL: "s3://bucket", Path: path}

	err := bt.Transfer(context.Background(), task)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no object")
}
