package orchestrator

import (
	"sort"
	"sync"

	"go-media-downloader/internal/models"
)

// Registry holds the latest snapshot of every job started in this process.
// Snapshots are stored and returned by value, so a reader never sees one
// half-written.
type Registry struct {
	mu   sync.RWMutex
	jobs map[int]models.JobSnapshot
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[int]models.JobSnapshot)}
}

// Put replaces the snapshot for s.JobID.
func (r *Registry) Put(s models.JobSnapshot) {
	r.mu.Lock()
	r.jobs[s.JobID] = s
	r.mu.Unlock()
}

// Get returns a copy of the snapshot for id.
func (r *Registry) Get(id int) (models.JobSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.jobs[id]
	return s, ok
}

// List returns copies of all snapshots ordered by job ID.
func (r *Registry) List() []models.JobSnapshot {
	r.mu.RLock()
	out := make([]models.JobSnapshot, 0, len(r.jobs))
	for _, s := range r.jobs {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// reserve stores s only if no active job holds the same ID.
func (r *Registry) reserve(s models.JobSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.jobs[s.JobID]; ok && cur.State.IsActive() {
		return false
	}
	r.jobs[s.JobID] = s
	return true
}
