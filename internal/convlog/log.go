// Package convlog maintains ordered, append-only, tenant-scoped message
// sequences.
package convlog

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
	"github.com/capitalize-ai/chatbot-engine/pkg/metrics"
)

// stripeCount sizes the append lock table. Appends to the same conversation
// serialize on one stripe; different conversations almost always proceed
// independently.
const stripeCount = 128

// Log appends messages and reads history through the durable store.
type Log struct {
	store   store.Store
	stripes [stripeCount]sync.Mutex
}

// NewLog creates a conversation log over the given store.
func NewLog(st store.Store) *Log {
	return &Log{store: st}
}

func (l *Log) stripe(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return &l.stripes[h.Sum32()%stripeCount]
}

// Append durably appends a message and assigns it the conversation's next
// sequence number. The message's ID, timestamp, and sequence are filled in.
// Appends to one conversation are serialized; no two receive the same
// sequence number.
func (l *Log) Append(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg.TenantID == "" || msg.ConversationID == "" {
		return nil, fmt.Errorf("append requires tenant and conversation IDs")
	}

	msg.ID = uuid.Must(uuid.NewV7()).String()
	msg.CreatedAt = time.Now()

	mu := l.stripe(msg.ConversationID)
	mu.Lock()
	seq, err := l.store.AppendMessage(ctx, msg)
	mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	msg.Sequence = seq

	metrics.MessagesTotal.WithLabelValues(msg.TenantID, string(msg.Role)).Inc()
	return msg, nil
}

// History returns the most recent limit messages of a conversation, oldest
// first. Reads are restartable: already-returned messages keep their order
// across calls, though later calls may observe newer appends.
func (l *Log) History(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	msgs, err := l.store.RecentMessages(ctx, tenantID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return msgs, nil
}
