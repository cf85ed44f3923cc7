package transfer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/modeldepot/core/internal/observability"
)

const defaultRetention = 30 * time.Second

// RegistryParams configure a Registry. Zero values get defaults.
type RegistryParams struct {
	Logger *observability.CoreLogger

	// Retention is how long finished records stay visible before
	// ReapFinished evicts them.
	Retention time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// pending is the handle duplicate submitters block on for a key. The
// settling worker stores its final record in rec before closing done;
// joiners read rec only after done is closed.
type pending struct {
	done chan struct{}
	rec  Record
}

// Registry owns the transfer records plus the per-key pending handles
// and cancel funcs used to deduplicate and stop in-flight work.
//
// Invariant: a pending handle and a cancel func exist for a key exactly
// while a worker for that key is in flight. Only that worker mutates
// the key's record until it settles.
type Registry struct {
	mu        sync.Mutex
	records   map[string]Record
	pending   map[string]*pending
	cancels   map[string]context.CancelFunc
	retention time.Duration
	clock     func() time.Time
	logger    *observability.CoreLogger
}

func NewRegistry(params RegistryParams) *Registry {
	if params.Logger == nil {
		params.Logger = observability.NewNoOpLogger()
	}
	if params.Retention <= 0 {
		params.Retention = defaultRetention
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &Registry{
		records:   make(map[string]Record),
		pending:   make(map[string]*pending),
		cancels:   make(map[string]context.CancelFunc),
		retention: params.Retention,
		clock:     params.Clock,
		logger:    params.Logger,
	}
}

// Progress returns a snapshot of the record for key. Unknown keys get
// an idle record at zero progress rather than an error.
func (r *Registry) Progress(key string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		return rec
	}
	return Record{Key: key, Status: StatusIdle}
}

// ListActiveOrRecent reaps expired records, then returns the records
// still downloading or recently finished with an error or a stop.
// Completed transfers are omitted. The result is sorted by key.
func (r *Registry) ListActiveOrRecent() []Record {
	r.ReapFinished()

	r.mu.Lock()
	defer r.mu.Unlock()
	recs := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		switch rec.Status {
		case StatusDownloading, StatusStopped, StatusError:
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs
}

// Cancel signals the worker for key to stop. It returns false when no
// worker is in flight for that key.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.logger.Info("transfer: cancel requested", "key", key)
	cancel()
	return true
}

// begin claims key for a new worker. When no worker holds the key it
// atomically records a downloading entry, allocates the pending handle
// and cancel func, and returns started=true with the worker's context.
// Otherwise it returns the existing handle for the caller to block on.
func (r *Registry) begin(key, dest string) (p *pending, ctx context.Context, rec Record, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.pending[key]; ok {
		return existing, nil, r.records[key], false
	}

	ctx, cancel := context.WithCancel(context.Background())
	p = &pending{done: make(chan struct{})}
	r.pending[key] = p
	r.cancels[key] = cancel
	rec = Record{
		Key:             key,
		Status:          StatusDownloading,
		DestinationPath: dest,
		StartedAt:       r.clock(),
	}
	r.records[key] = rec
	return p, ctx, rec, true
}

// setProgress updates the percentage for an in-flight transfer.
func (r *Registry) setProgress(key string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok || rec.Status != StatusDownloading {
		return
	}
	rec.Progress = progress
	r.records[key] = rec
}

// settle moves key to a terminal status, releases its cancel func, and
// returns the final record. The record is stored on the pending handle
// before the handle is closed, so joiners observe this transfer's
// outcome even when the key is immediately re-claimed.
func (r *Registry) settle(key string, status Status, errMsg string) Record {
	r.mu.Lock()
	rec := r.records[key]
	rec.Key = key
	rec.Status = status
	rec.ErrorMessage = errMsg
	rec.FinishedAt = r.clock()
	if status == StatusDone {
		rec.Progress = 100
	}
	r.records[key] = rec
	p := r.pending[key]
	if p != nil {
		p.rec = rec
	}
	delete(r.pending, key)
	if cancel, ok := r.cancels[key]; ok {
		cancel()
		delete(r.cancels, key)
	}
	r.mu.Unlock()

	if p != nil {
		close(p.done)
	}
	return rec
}

// putSatisfied records a completed transfer without running a worker,
// used when the destination already matches the remote artifact.
func (r *Registry) putSatisfied(key, dest string) Record {
	now := r.clock()
	rec := Record{
		Key:             key,
		Status:          StatusDone,
		Progress:        100,
		DestinationPath: dest,
		StartedAt:       now,
		FinishedAt:      now,
	}
	r.mu.Lock()
	r.records[key] = rec
	r.mu.Unlock()
	return rec
}

// cancelAll signals every in-flight worker to stop.
func (r *Registry) cancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for _, cancel := range r.cancels {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
