package memory

import (
	"context"
	"sort"
	"sync"
)

// DeploymentStore is the in-memory repository.DeploymentRepository
// implementation. P is typically *planner.Plan.
type DeploymentStore[P any] struct {
	mu    sync.Mutex
	plans map[string]P
	idOf  func(P) string
}

func NewDeploymentStore[P any](idOf func(P) string) *DeploymentStore[P] {
	return &DeploymentStore[P]{plans: map[string]P{}, idOf: idOf}
}

func (s *DeploymentStore[P]) Store(_ context.Context, plan P) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[s.idOf(plan)] = plan
	return nil
}

func (s *DeploymentStore[P]) Delete(_ context.Context, planId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, planId)
	return nil
}

func (s *DeploymentStore[P]) All(_ context.Context) ([]P, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.plans))
	for id := range s.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]P, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.plans[id])
	}
	return out, nil
}
