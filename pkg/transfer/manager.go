// Package transfer implements the download core of the model manager:
// artifact descriptors come in, files and repositories land on disk,
// and per-artifact records report progress to pollers.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/modeldepot/core/internal/credentials"
	"github.com/modeldepot/core/internal/debounce"
	"github.com/modeldepot/core/internal/httpclient"
	"github.com/modeldepot/core/internal/observability"
	"github.com/modeldepot/core/internal/paths"
	"github.com/modeldepot/core/internal/waiting"
)

const (
	defaultProgressInterval = 100 * time.Millisecond
	defaultProbeTimeout     = 5 * time.Second
	defaultTermGrace        = 5 * time.Second
)

// ErrManagerClosed is returned by Submit after Close has been called.
var ErrManagerClosed = errors.New("transfer: manager closed")

// Manager is the public entry point for artifact transfers. It
// validates descriptors, deduplicates concurrent submissions per key,
// spawns a worker per accepted artifact and settles the registry
// record when the worker finishes.
type Manager struct {
	registry         *Registry
	transfers        *Transfers
	preflight        *Preflight
	stats            TransferStats
	logger           *observability.CoreLogger
	progressInterval time.Duration

	// mu guards closed and makes claiming a key atomic with adding the
	// key's worker to wg.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type ManagerOption func(*Manager)

func WithLogger(logger *observability.CoreLogger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithRegistry(registry *Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = registry
	}
}

func WithTransfers(transfers *Transfers) ManagerOption {
	return func(m *Manager) {
		m.transfers = transfers
	}
}

func WithPreflight(preflight *Preflight) ManagerOption {
	return func(m *Manager) {
		m.preflight = preflight
	}
}

func WithStats(stats TransferStats) ManagerOption {
	return func(m *Manager) {
		m.stats = stats
	}
}

// WithProgressInterval bounds how often a worker writes progress
// updates into the registry.
func WithProgressInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.progressInterval = interval
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = observability.NewNoOpLogger()
	}
	if m.stats == nil {
		m.stats = NewTransferStats()
	}
	if m.registry == nil {
		m.registry = NewRegistry(RegistryParams{Logger: m.logger})
	}
	if m.transfers == nil {
		client := httpclient.NewRetryClient(
			httpclient.WithLogger(m.logger),
			httpclient.WithRetryMax(0),
		)
		m.transfers = NewTransfers(
			client, m.logger, m.stats, defaultChunkSize, waiting.NewDelay(defaultTermGrace))
	}
	if m.preflight == nil {
		probe := httpclient.NewRetryClient(
			httpclient.WithLogger(m.logger),
			httpclient.WithRetryMax(0),
			httpclient.WithTimeout(defaultProbeTimeout),
		)
		m.preflight = NewPreflight(probe, m.logger)
	}
	if m.progressInterval <= 0 {
		m.progressInterval = defaultProgressInterval
	}
	return m
}

// SubmitParams carries the per-call inputs for Submit.
type SubmitParams struct {
	// BasePath substitutes the "{base}" token in destination paths.
	BasePath string

	// Credentials sign remote requests for known providers.
	Credentials credentials.Credentials

	// Sync runs the transfer on the calling goroutine and returns its
	// terminal record instead of an early snapshot. Cancelling the
	// Submit context stops a sync transfer.
	Sync bool
}

// Submit accepts an artifact for transfer.
//
// A malformed descriptor fails with ErrInvalidArtifact and leaves no
// record. When the destination already matches the remote size the
// call records a completed transfer and returns without downloading.
// If another worker already holds the artifact's key, Submit blocks
// until that worker settles (or ctx is done) and returns its record
// rather than starting a second transfer. Otherwise a worker is
// spawned and the fresh downloading record is returned; transfer
// failures surface in the record, not as a Submit error. After Close,
// Submit fails with ErrManagerClosed.
func (m *Manager) Submit(ctx context.Context, artifact Artifact, params SubmitParams) (Record, error) {
	if err := artifact.Validate(); err != nil {
		return Record{}, err
	}
	if m.isClosed() {
		return Record{}, ErrManagerClosed
	}
	key := artifact.Key()

	dest, err := paths.Resolve(artifact.DestinationPath, params.BasePath)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	task := &Task{
		Key:         key,
		RemoteURL:   artifact.RemoteURL,
		GitURL:      artifact.GitURL,
		Path:        dest,
		Headers:     artifact.Headers,
		Credentials: params.Credentials,
	}

	if task.RemoteURL != "" {
		size, satisfied := m.preflight.Satisfied(ctx, task)
		if satisfied {
			m.logger.Info("transfer: already satisfied", "key", key, "size", size)
			return m.registry.putSatisfied(key, dest), nil
		}
		task.Size = size
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Record{}, ErrManagerClosed
	}
	p, workerCtx, rec, started := m.registry.begin(key, dest)
	if started && !params.Sync {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if !started {
		m.logger.Debug("transfer: joining in-flight transfer", "key", key)
		select {
		case <-p.done:
			return p.rec, nil
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}

	m.logger.Info("transfer: accepted", "key", key, "path", dest)

	if params.Sync {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				m.registry.Cancel(key)
			case <-done:
			}
		}()
		return m.runTransfer(workerCtx, task), nil
	}

	go func() {
		defer m.wg.Done()
		m.runTransfer(workerCtx, task)
	}()
	return rec, nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// runTransfer executes one task and settles its record exactly once,
// including when the strategy panics.
func (m *Manager) runTransfer(ctx context.Context, task *Task) (rec Record) {
	deb := debounce.NewDebouncer(
		rate.Every(m.progressInterval), 1, m.logger)
	current := 0
	writeProgress := func() {
		m.registry.setProgress(task.Key, current)
	}
	task.Progress = func(written, total int64) {
		current = percent(written, total)
		deb.SetNeedsDebounce()
		deb.Debounce(writeProgress)
	}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("transfer: panic: %v", p)
			m.logger.CaptureError(err, "key", task.Key)
			rec = m.registry.settle(task.Key, StatusError, err.Error())
		}
	}()

	err := m.transfers.ForTask(task).Transfer(ctx, task)

	deb.Flush(writeProgress)

	switch {
	case err == nil:
		rec = m.registry.settle(task.Key, StatusDone, "")
		m.logger.Info("transfer: done", "key", task.Key)
	case errors.Is(err, context.Canceled):
		rec = m.registry.settle(task.Key, StatusStopped, "")
		m.logger.Info("transfer: stopped", "key", task.Key)
	default:
		rec = m.registry.settle(task.Key, StatusError, err.Error())
		m.logger.CaptureError(
			fmt.Errorf("transfer: %w", err), "key", task.Key)
	}
	return rec
}

// Progress returns the record for key, or an idle record for unknown
// keys.
func (m *Manager) Progress(key string) Record {
	return m.registry.Progress(key)
}

// ListActiveOrRecent reaps expired records and returns transfers that
// are running or recently ended in a stop or an error.
func (m *Manager) ListActiveOrRecent() []Record {
	return m.registry.ListActiveOrRecent()
}

// Cancel signals the worker for key to stop. It returns false when
// nothing is in flight for that key.
func (m *Manager) Cancel(key string) bool {
	return m.registry.Cancel(key)
}

// ReapFinished evicts finished records older than the retention window
// and returns how many were removed.
func (m *Manager) ReapFinished() int {
	return m.registry.ReapFinished()
}

// Stats exposes aggregate byte counts across all downloads.
func (m *Manager) Stats() TransferStats {
	return m.stats
}

// Close cancels all in-flight transfers and waits for their workers to
// settle. Submits arriving after Close fail with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.registry.cancelAll()
	m.wg.Wait()
	m.logger.Info("transfer: manager closed")
}
