// Package events publishes deployment lifecycle records to Kafka. This is
// ambient observability, not part of the control-plane core proper: the
// executor calls Publisher on plan start/step-completion/failure/
// cancellation, but nothing in the core blocks on or reads these events
// back.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kind tags a deployment lifecycle record.
type Kind string

const (
	DeploymentStarted   Kind = "DeploymentStarted"
	StepCompleted       Kind = "StepCompleted"
	DeploymentFailed    Kind = "DeploymentFailed"
	DeploymentCancelled Kind = "DeploymentCancelled"
	DeploymentCompleted Kind = "DeploymentCompleted"
)

// Record is the JSON payload written to the deployment-events topic.
type Record struct {
	Kind         Kind      `json:"kind"`
	DeploymentId string    `json:"deploymentId"`
	StepIndex    int       `json:"stepIndex,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher writes deployment lifecycle Records to Kafka, keyed by
// deployment id so all of one deployment's events land on the same
// partition and preserve order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher returns a Publisher for topic across brokers. The writer
// uses the kafka.Hash balancer, which hashes the record key so one
// deployment's events land on one partition in order (LeastBytes or
// round-robin would spread them across partitions).
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

func (p *Publisher) Close() error { return p.writer.Close() }

func (p *Publisher) publish(ctx context.Context, r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.DeploymentId),
		Value: payload,
		Time:  r.At,
	})
}

func (p *Publisher) DeploymentStarted(ctx context.Context, deploymentId string, at time.Time) error {
	return p.publish(ctx, Record{Kind: DeploymentStarted, DeploymentId: deploymentId, At: at})
}

func (p *Publisher) StepCompleted(ctx context.Context, deploymentId string, stepIndex int, at time.Time) error {
	return p.publish(ctx, Record{Kind: StepCompleted, DeploymentId: deploymentId, StepIndex: stepIndex, At: at})
}

func (p *Publisher) DeploymentFailed(ctx context.Context, deploymentId, reason string, at time.Time) error {
	return p.publish(ctx, Record{Kind: DeploymentFailed, DeploymentId: deploymentId, Reason: reason, At: at})
}

func (p *Publisher) DeploymentCancelled(ctx context.Context, deploymentId, reason string, at time.Time) error {
	return p.publish(ctx, Record{Kind: DeploymentCancelled, DeploymentId: deploymentId, Reason: reason, At: at})
}

func (p *Publisher) DeploymentCompleted(ctx context.Context, deploymentId string, at time.Time) error {
	return p.publish(ctx, Record{Kind: DeploymentCompleted, DeploymentId: deploymentId, At: at})
}
