package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chatbot-engine/internal/model"
)

const (
	// StreamName is the name of the usage stream.
	StreamName = "USAGE"

	// SubjectPrefix is the prefix for all usage subjects.
	SubjectPrefix = "usage"
)

// Publisher publishes one usage event per committed turn. Publishing is
// best-effort fan-out; the durable analytics counter in the store is the
// record of truth.
type Publisher interface {
	PublishUsage(ctx context.Context, event *model.UsageEvent) error
}

// StreamManager handles JetStream stream operations for usage events.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the usage stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Per-tenant usage events, one per committed turn",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// UsageSubject returns the subject for a tenant's usage events.
func UsageSubject(tenantID string, status model.Status) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, tenantID, status)
}

// PublishUsage publishes a usage event to JetStream.
func (m *StreamManager) PublishUsage(ctx context.Context, event *model.UsageEvent) error {
	subject := UsageSubject(event.TenantID, event.Status)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal usage event: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish usage event: %w", err)
	}
	return nil
}
