// Package registry maintains the process-wide, named collection of feed
// indexes and exposes the operations the HTTP front end needs: ping,
// clear, update, remove, query, and total. It is the single place that
// synchronizes access to the otherwise-unsynchronized feedindex types.
package registry

import (
	"sync"

	"github.com/onnwee/feedindex/internal/feedindex"
)

// UpdateBatch groups posts to add or remove for one named source.
type UpdateBatch struct {
	Source string
	Posts  []feedindex.Post
}

// QueryResult is the outcome of a query operation.
type QueryResult struct {
	PostIDs      []feedindex.ID
	Total        int
	CacheIsEmpty bool
}

// Registry is a name -> SourceIndex map guarded by a single-writer,
// multi-reader lock. ping takes no lock; query and total hold a read
// lock for the full duration of the operation; clear, update, and
// remove hold a write lock.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*feedindex.SourceIndex
	metrics *Metrics
}

// New returns an empty Registry. metrics may be nil, in which case
// operations run unobserved.
func New(metrics *Metrics) *Registry {
	return &Registry{
		sources: make(map[string]*feedindex.SourceIndex),
		metrics: metrics,
	}
}

// Ping takes no lock and always succeeds; it exists to let clients probe
// liveness without contending with in-flight registry operations.
func (r *Registry) Ping() string {
	return "pong"
}

// Clear drops every source from the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = make(map[string]*feedindex.SourceIndex)
	if r.metrics != nil {
		r.metrics.IncOperation(OperationClear)
		r.metrics.SetSourceCount(0)
	}
}

// Update applies each batch's adds to its source, creating the source if
// it does not already exist. Batches are applied in input order.
func (r *Registry) Update(batches []UpdateBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range batches {
		src := r.getOrCreate(b.Source)
		for _, p := range b.Posts {
			src.Add(p)
		}
	}

	if r.metrics != nil {
		r.metrics.IncOperation(OperationUpdate)
		r.metrics.SetSourceCount(len(r.sources))
	}
}

// Remove applies each batch's removals to its source. Batches naming an
// unknown source are silently ignored.
func (r *Registry) Remove(batches []UpdateBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range batches {
		src, ok := r.sources[b.Source]
		if !ok {
			continue
		}
		for _, p := range b.Posts {
			src.Remove(p)
		}
	}

	if r.metrics != nil {
		r.metrics.IncOperation(OperationRemove)
	}
}

// Query resolves the named sources (silently skipping unknown names),
// runs the offset resolver and merge reader over them, and reports the
// total post count across the queried, known sources plus whether the
// registry as a whole is currently empty.
func (r *Registry) Query(sourceNames []string, offset, limit int) QueryResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]*feedindex.SourceIndex, 0, len(sourceNames))
	total := 0
	for _, name := range sourceNames {
		src, ok := r.sources[name]
		if !ok {
			continue
		}
		sources = append(sources, src)
		total += src.Len()
	}

	dayCut, prior := feedindex.ResolveDay(sources, offset)
	ids := feedindex.Stream(sources, dayCut, prior, offset, limit)

	if r.metrics != nil {
		r.metrics.IncOperation(OperationQuery)
		r.metrics.ObserveQuerySourceCount(len(sources))
	}

	return QueryResult{
		PostIDs:      ids,
		Total:        total,
		CacheIsEmpty: len(r.sources) == 0,
	}
}

// Total sums Len() across the named, known sources; unknown names
// contribute zero.
func (r *Registry) Total(sourceNames []string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, name := range sourceNames {
		if src, ok := r.sources[name]; ok {
			total += src.Len()
		}
	}

	if r.metrics != nil {
		r.metrics.IncOperation(OperationTotal)
	}

	return total
}

// getOrCreate returns the named source, creating it lazily with
// counts.Length() == 1 if it does not yet exist. Callers must hold the
// write lock.
func (r *Registry) getOrCreate(name string) *feedindex.SourceIndex {
	src, ok := r.sources[name]
	if !ok {
		src = feedindex.NewSourceIndex()
		r.sources[name] = src
	}
	return src
}
