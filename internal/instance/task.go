package instance

import "time"

// Task is the unit the offer layer launches and tracks.
// Apps have exactly one task per instance; pods have one per container.
type Task struct {
	Id        string
	Condition Condition

	StartedAt        *time.Time
	Healthy          *bool // nil = unknown
	UnreachableSince *time.Time
}

// unreachableFor reports how long this task has been continuously
// unreachable as of now, or false if it currently isn't.
func (t Task) unreachableFor(now time.Time) (time.Duration, bool) {
	if t.Condition != Unreachable || t.UnreachableSince == nil {
		return 0, false
	}
	return now.Sub(*t.UnreachableSince), true
}
