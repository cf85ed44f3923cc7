package transfer

import (
	"fmt"

	"github.com/modeldepot/core/internal/credentials"
)

// Task is the unit of work handed to a transfer strategy: one source,
// one resolved destination, plus the per-call request trimmings.
type Task struct {
	// Key is the owning record's identity in the registry.
	Key string

	// RemoteURL is set for direct downloads, GitURL for clones.
	// Exactly one is non-empty.
	RemoteURL string
	GitURL    string

	// Path is the resolved absolute destination.
	Path string

	// Headers are extra HTTP headers for remote requests.
	Headers map[string]string

	// Credentials sign remote requests for known providers.
	Credentials credentials.Credentials

	// Size is the probed remote size in bytes, 0 when unknown.
	Size int64

	// Progress, when set, is called after each chunk lands on disk.
	// Total is 0 when the remote size is unknown.
	Progress func(written, total int64)
}

func (t *Task) String() string {
	source := t.RemoteURL
	if t.GitURL != "" {
		source = t.GitURL
	}
	return fmt.Sprintf("Task{Key: %s, Source: %s, Path: %s}", t.Key, source, t.Path)
}

// progress reports written bytes if a callback is attached.
func (t *Task) progress(written, total int64) {
	if t.Progress != nil {
		t.Progress(written, total)
	}
}
