package offerlayer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

func init() {
	Register("fake", func(map[string]string) (OfferLayer, error) { return NewFake(), nil })
}

// Fake is an in-memory OfferLayer for tests and local wiring: every launch
// request matches immediately, kills are recorded, and reconcile calls are
// recorded for assertions.
type Fake struct {
	mu sync.Mutex

	AlwaysMatch   bool
	Killed        []string
	Reconciled    [][]TaskStatusQuery
	nextTaskSeq   int
}

// NewFake returns a Fake that matches every launch request immediately.
func NewFake() *Fake {
	return &Fake{AlwaysMatch: true}
}

func (f *Fake) RequestLaunch(_ context.Context, req LaunchRequest) (LaunchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.AlwaysMatch {
		return LaunchResult{Matched: false}, nil
	}
	taskIds := make([]string, req.TaskCount)
	for i := range taskIds {
		f.nextTaskSeq++
		taskIds[i] = fmt.Sprintf("%s.task-%d", req.RunSpecId, f.nextTaskSeq)
	}
	return LaunchResult{
		Matched:   true,
		Host:      "agent-1.example.internal",
		AgentId:   "agent-1",
		TaskIds:   taskIds,
		MatchedAt: time.Now(),
	}, nil
}

func (f *Fake) Kill(_ context.Context, taskId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Killed = append(f.Killed, taskId)
	return nil
}

// KilledTasks returns a snapshot of every task id Kill has been called
// with, safe to call concurrently with in-flight kills.
func (f *Fake) KilledTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Killed...)
}

func (f *Fake) Reconcile(_ context.Context, tasks []TaskStatusQuery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reconciled = append(f.Reconciled, tasks)
	return nil
}
