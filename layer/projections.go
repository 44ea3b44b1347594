package layer

import (
	"sort"
	"sync"
)

// ProjectionRegistry records the coordinate systems the map can resolve.
// Detached probes add codes discovered in remote files.
type ProjectionRegistry struct {
	mu    sync.RWMutex
	codes map[int]struct{}
}

// NewProjectionRegistry seeds the registry with codes.
func NewProjectionRegistry(codes ...int) *ProjectionRegistry {
	r := &ProjectionRegistry{codes: map[int]struct{}{}}
	for _, code := range codes {
		r.codes[code] = struct{}{}
	}
	return r
}

// Register adds code and reports whether it was new.
func (r *ProjectionRegistry) Register(code int) bool {
	if code <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[code]; ok {
		return false
	}
	r.codes[code] = struct{}{}
	return true
}

func (r *ProjectionRegistry) Known(code int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codes[code]
	return ok
}

func (r *ProjectionRegistry) Codes() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.codes))
	for code := range r.codes {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}
