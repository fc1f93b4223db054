// Package kafka publishes audit events to a Kafka topic. It is write-only: the bridge
// does not read its own audit trail back from the broker.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "paymail-bridge/pkg/platform/audit"
)

// ErrNotQueryable is returned by the list methods.
var ErrNotQueryable = errors.New("kafka audit sink does not support queries")

// payload is the JSON value of each record. Field names are the consumer contract.
type payload struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
	Action      string `json:"action"`
	IdentityKey string `json:"identityKey,omitempty"`
	Alias       string `json:"alias,omitempty"`
	Reference   string `json:"reference,omitempty"`
	TxID        string `json:"txid,omitempty"`
	Satoshis    uint64 `json:"satoshis,omitempty"`
	Reason      string `json:"reason,omitempty"`
	IP          string `json:"ip,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

type Sink struct {
	client *kgo.Client
	topic  string
}

func New(client *kgo.Client, topic string) *Sink {
	return &Sink{client: client, topic: topic}
}

// Append produces event synchronously, keyed by identity key so one wallet's events
// stay ordered within a partition.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(payload{
		ID:          event.ID,
		Category:    string(audit.AuditEvent(event.Action).Category()),
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:      event.Action,
		IdentityKey: event.IdentityKey,
		Alias:       event.Alias,
		Reference:   event.Reference,
		TxID:        event.TxID,
		Satoshis:    event.Satoshis,
		Reason:      event.Reason,
		IP:          event.IP,
		RequestID:   event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.IdentityKey),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Sink) ListByIdentity(context.Context, string) ([]audit.Event, error) {
	return nil, ErrNotQueryable
}

func (s *Sink) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, ErrNotQueryable
}

// Decode parses a record value produced by Append.
func Decode(value []byte) (audit.Event, error) {
	var p payload
	if err := json.Unmarshal(value, &p); err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse audit timestamp: %w", err)
	}
	return audit.Event{
		ID:          p.ID,
		Category:    audit.EventCategory(p.Category),
		Timestamp:   ts,
		Action:      p.Action,
		IdentityKey: p.IdentityKey,
		Alias:       p.Alias,
		Reference:   p.Reference,
		TxID:        p.TxID,
		Satoshis:    p.Satoshis,
		Reason:      p.Reason,
		IP:          p.IP,
		RequestID:   p.RequestID,
	}, nil
}
