// Package events publishes workload lifecycle and session events to kafka
// for downstream consumers (analytics, the scheduler loop dashboard).
// Publishing is best effort; a broker outage never fails the operation that
// produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	TypeWorkloadCreated    = "WORKLOAD_CREATED"
	TypeWorkloadRegistered = "WORKLOAD_REGISTERED"
	TypeWorkloadStopping   = "WORKLOAD_STOPPING"
	TypeWorkloadFailed     = "WORKLOAD_FAILED"
	TypePlayerConnected    = "PLAYER_CONNECTED"
	TypePlayerDisconnected = "PLAYER_DISCONNECTED"
)

// Producer writes workload events keyed by workload id so per-workload
// ordering survives partitioning.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokerURL, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerURL),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// Publish emits one event. Errors are logged and swallowed.
func (p *Producer) Publish(ctx context.Context, eventType, workloadID string, payload interface{}) {
	if p == nil {
		return
	}

	value, err := json.Marshal(map[string]interface{}{
		"event_type": eventType,
		"timestamp":  time.Now().UTC(),
		"payload":    payload,
	})
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to marshal event")
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(workloadID),
		Value: value,
	}); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to publish event")
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
