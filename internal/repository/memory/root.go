package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RootStore is the in-memory repository.RootRepository implementation.
// R is typically *runspec.Group; the store is generic over whatever root
// representation the caller persists.
type RootStore[R any] struct {
	mu       sync.Mutex
	current  R
	haveCur  bool
	versions map[int64]R
}

func NewRootStore[R any]() *RootStore[R] {
	return &RootStore[R]{versions: map[int64]R{}}
}

func (s *RootStore[R]) Root(_ context.Context) (R, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.haveCur, nil
}

func (s *RootStore[R]) RootVersions(_ context.Context) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]int64, 0, len(s.versions))
	for k := range s.versions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]time.Time, len(keys))
	for i, k := range keys {
		out[i] = time.Unix(0, k)
	}
	return out, nil
}

func (s *RootStore[R]) RootVersion(_ context.Context, ts time.Time) (R, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[ts.UnixNano()]
	return v, ok, nil
}

// StoreRoot persists root and its version snapshot. updatedApp/PodIds and
// deletedApp/PodIds are accepted for interface parity with
// repository.RootRepository; actual app/pod persistence happens through
// the caller's separate app/pod Store instances. Neither this nor the
// Postgres-backed StoreRoot writes app/pod rows, so the root write and the
// app/pod writes are not one atomic unit in either backend.
func (s *RootStore[R]) StoreRoot(_ context.Context, root R, updatedAppIds, deletedAppIds, updatedPodIds, deletedPodIds []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = root
	s.haveCur = true
	s.versions[timeKey()] = root
	return nil
}

func (s *RootStore[R]) DeleteRootVersion(_ context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, ts.UnixNano())
	return nil
}
