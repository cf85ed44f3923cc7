package transfer

import (
	"context"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/modeldepot/core/internal/observability"
	"github.com/modeldepot/core/internal/waiting"
)

// Strategy moves one artifact to its destination. Implementations must
// honor cancellation via ctx and clean up according to their kind's
// partial-output rules.
type Strategy interface {
	Transfer(ctx context.Context, task *Task) error
}

// Transfers holds the available strategies and routes tasks to them.
type Transfers struct {
	HTTP Strategy
	Git  Strategy
	Blob Strategy
}

func NewTransfers(
	client *retryablehttp.Client,
	logger *observability.CoreLogger,
	stats TransferStats,
	chunkSize int64,
	termGrace waiting.Delay,
) *Transfers {
	return &Transfers{
		HTTP: NewHTTPTransfer(client, logger, stats, chunkSize),
		Git:  NewGitTransfer(logger, termGrace),
		Blob: NewBlobTransfer(logger, stats, chunkSize),
	}
}

// ForTask picks the strategy for a task: git URLs clone, bucket schemes
// stream from object storage, and everything else goes over HTTP.
func (t *Transfers) ForTask(task *Task) Strategy {
	if task.GitURL != "" {
		return t.Git
	}
	u, err := url.Parse(task.RemoteURL)
	if err != nil {
		return t.HTTP
	}
	switch u.Scheme {
	case "s3", "gs", "azblob":
		return t.Blob
	}
	return t.HTTP
}
