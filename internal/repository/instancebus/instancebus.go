// Package instancebus fans instance-update events out over Redis pub/sub,
// so the scheduler and the kill service (completion detection) can each
// subscribe independently rather than sharing an in-process channel. The
// scheduler's actor loop receives the events but takes no action on them.
package instancebus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

const channel = "marathon:instance-events"

// EventKind distinguishes the two event shapes published on the bus.
type EventKind string

const (
	InstanceChanged           EventKind = "InstanceChanged"
	UnknownInstanceTerminated EventKind = "UnknownInstanceTerminated"
)

// Event is the wire envelope published on channel.
type Event struct {
	Kind       EventKind `json:"kind"`
	InstanceId string    `json:"instanceId,omitempty"`
	TaskId     string    `json:"taskId,omitempty"`
	Condition  string    `json:"condition,omitempty"`
	Goal       string    `json:"goal,omitempty"`
	At         time.Time `json:"at"`
}

// Bus publishes and subscribes to instance events over a Redis client.
type Bus struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Bus { return &Bus{rdb: rdb} }

// PublishInstanceChanged announces an instance's condition/goal transition.
func (b *Bus) PublishInstanceChanged(ctx context.Context, instanceId, condition, goal string, at time.Time) error {
	return b.publish(ctx, Event{Kind: InstanceChanged, InstanceId: instanceId, Condition: condition, Goal: goal, At: at})
}

// PublishUnknownInstanceTerminated announces that a task outside any
// tracked instance reached a terminal condition.
func (b *Bus) PublishUnknownInstanceTerminated(ctx context.Context, taskId string, at time.Time) error {
	return b.publish(ctx, Event{Kind: UnknownInstanceTerminated, TaskId: taskId, At: at})
}

func (b *Bus) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a channel of decoded events; malformed payloads are
// dropped silently and never reach the caller. The
// returned subscription must be closed by the caller via the *redis.PubSub
// it wraps internally; Subscribe hands back only the decoded stream plus
// a close func to keep the consumer side simple.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func() error) {
	sub := b.rdb.Subscribe(ctx, channel)
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub.Close
}
