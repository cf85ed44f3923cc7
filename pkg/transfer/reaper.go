package transfer

// ReapFinished evicts terminal records older than the retention window
// and returns how many were removed. A terminal record missing its
// finish time is stamped with the current time instead of evicted, so
// it survives at least one full window.
//
// The reaper is pull-driven: it runs when called, typically just before
// listing records. In-flight transfers are never touched.
func (r *Registry) ReapFinished() int {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, rec := range r.records {
		if !rec.Status.Terminal() {
			continue
		}
		if rec.FinishedAt.IsZero() {
			rec.FinishedAt = now
			r.records[key] = rec
			continue
		}
		if now.Sub(rec.FinishedAt) > r.retention {
			delete(r.records, key)
			removed++
		}
	}
	return removed
}
