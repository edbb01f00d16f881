// Package offerlayer defines the interface the control plane core consumes
// for the two-level scheduler collaborator. The actual resource-offer
// matching algorithm, and the wire protobuf encoding of launch/kill
// operations, are out of scope; only the contract and a
// fake implementation for wiring/tests live here.
package offerlayer

import (
	"context"
	"time"
)

// LaunchRequest asks the offer layer to try to place one more instance of
// runSpecId.
type LaunchRequest struct {
	RunSpecId string
	Role      string
	TaskCount int
}

// LaunchResult is either a committed launch (Matched=true, with the bound
// agent and task ids) or "no match yet" (Matched=false): the offer layer
// had nothing suitable this cycle and the caller should keep the request
// queued.
type LaunchResult struct {
	Matched    bool
	Host       string
	AgentId    string
	TaskIds    []string
	MatchedAt  time.Time
}

// TaskStatusQuery is one entry in a reconciliation request: the tracker
// builds this list excluding terminal and Provisioned tasks.
type TaskStatusQuery struct {
	TaskId    string
	Condition string
}

// OfferLayer is the external collaborator contract: launch, kill and
// reconcile against the two-level scheduler.
type OfferLayer interface {
	// RequestLaunch enqueues or immediately resolves a launch attempt.
	RequestLaunch(ctx context.Context, req LaunchRequest) (LaunchResult, error)

	// Kill asks the offer layer to kill taskId. Idempotent: re-issuing the
	// same kill is defined behavior.
	Kill(ctx context.Context, taskId string) error

	// Reconcile submits the non-terminal, non-Provisioned task list for
	// status reconciliation. An empty list is the sentinel
	// that reconciliation finished.
	Reconcile(ctx context.Context, tasks []TaskStatusQuery) error
}
