package transfer

import "time"

// Status is the lifecycle state of an artifact transfer.
type Status string

const (
	// StatusIdle is reported for keys the registry has never seen.
	StatusIdle Status = "idle"

	// StatusDownloading means a worker is moving bytes for this key.
	StatusDownloading Status = "downloading"

	// StatusDone means the artifact is complete at its destination.
	StatusDone Status = "done"

	// StatusStopped means the transfer was cancelled and its partial
	// output cleaned up.
	StatusStopped Status = "stopped"

	// StatusError means the transfer failed; ErrorMessage has details.
	StatusError Status = "error"
)

// Terminal reports whether no further updates will occur for this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusStopped, StatusError:
		return true
	}
	return false
}

// Record describes one artifact's transfer at a point in time.
//
// Records are passed by value: a Record returned to a caller is a
// snapshot, and only the worker that owns the key mutates the stored
// copy (the reaper may backfill FinishedAt).
type Record struct {
	// Key is the artifact's deduplication identity.
	Key string

	// Status is the current lifecycle state.
	Status Status

	// Progress is a percentage in [0, 100]. It stays 0 when the total
	// size is unknown and jumps to 100 on completion.
	Progress int

	// DestinationPath is the resolved local path being written.
	DestinationPath string

	// StartedAt is when the transfer was accepted.
	StartedAt time.Time

	// FinishedAt is when the transfer reached a terminal status.
	FinishedAt time.Time

	// ErrorMessage holds the failure cause when Status is StatusError.
	ErrorMessage string
}
