package transfer

import (
	"errors"
	"fmt"
)

// ErrInvalidArtifact is returned by Manager.Submit when the artifact
// descriptor is malformed. Nothing is recorded in the registry.
var ErrInvalidArtifact = errors.New("transfer: invalid artifact")

// Artifact describes one model artifact to fetch: exactly one source
// URL plus the local destination it should land at.
type Artifact struct {
	// RemoteURL is the source for direct downloads. Supports http(s)
	// and the bucket schemes s3, gs and azblob.
	RemoteURL string

	// GitURL is the source for repository clones. Mutually exclusive
	// with RemoteURL.
	GitURL string

	// DestinationPath is where the artifact lands. It may be absolute,
	// relative, home-prefixed or use the "{base}" token; see the paths
	// package.
	DestinationPath string

	// Headers are extra HTTP headers sent with remote requests.
	Headers map[string]string
}

// Key returns the artifact's deduplication identity: the destination
// path when present, otherwise the git URL.
func (a Artifact) Key() string {
	if a.DestinationPath != "" {
		return a.DestinationPath
	}
	return a.GitURL
}

// Validate checks that the descriptor names exactly one source and a
// destination. Errors wrap ErrInvalidArtifact.
func (a Artifact) Validate() error {
	switch {
	case a.RemoteURL == "" && a.GitURL == "":
		return fmt.Errorf("%w: a remote URL or a git URL is required", ErrInvalidArtifact)
	case a.RemoteURL != "" && a.GitURL != "":
		return fmt.Errorf("%w: remote URL and git URL are mutually exclusive", ErrInvalidArtifact)
	case a.DestinationPath == "":
		return fmt.Errorf("%w: a destination path is required", ErrInvalidArtifact)
	}
	return nil
}
