package convlog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	now := time.Now()
	tenant := &model.Tenant{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Name:           "bot",
		IndexNamespace: "ns",
		QuotaCeiling:   100,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, st.CreateTenant(context.Background(), tenant))
	return NewLog(st), tenant.ID
}

func TestAppendFillsIdentity(t *testing.T) {
	l, tenantID := newTestLog(t)

	msg, err := l.Append(context.Background(), &model.Message{
		TenantID:       tenantID,
		ConversationID: uuid.Must(uuid.NewV7()).String(),
		Role:           model.RoleUser,
		Content:        "hi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, uint64(1), msg.Sequence)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestAppendRequiresScope(t *testing.T) {
	l, _ := newTestLog(t)

	_, err := l.Append(context.Background(), &model.Message{
		Role:    model.RoleUser,
		Content: "no tenant",
	})
	assert.Error(t, err)
}

func TestConcurrentAppendsOneConversation(t *testing.T) {
	l, tenantID := newTestLog(t)
	convID := uuid.Must(uuid.NewV7()).String()
	const n = 40

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Append(context.Background(), &model.Message{
				TenantID:       tenantID,
				ConversationID: convID,
				Role:           model.RoleUser,
				Content:        fmt.Sprintf("msg-%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := l.History(context.Background(), tenantID, convID, n)
	require.NoError(t, err)
	require.Len(t, msgs, n)

	// No duplicates, no gaps, strictly increasing.
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Sequence)
	}
}

func TestConcurrentAppendsSeparateConversations(t *testing.T) {
	l, tenantID := newTestLog(t)
	const conversations = 8
	const perConv = 10

	var wg sync.WaitGroup
	convIDs := make([]string, conversations)
	for c := 0; c < conversations; c++ {
		convIDs[c] = uuid.Must(uuid.NewV7()).String()
		for i := 0; i < perConv; i++ {
			wg.Add(1)
			go func(convID string) {
				defer wg.Done()
				_, err := l.Append(context.Background(), &model.Message{
					TenantID:       tenantID,
					ConversationID: convID,
					Role:           model.RoleUser,
					Content:        "m",
				})
				assert.NoError(t, err)
			}(convIDs[c])
		}
	}
	wg.Wait()

	for _, convID := range convIDs {
		msgs, err := l.History(context.Background(), tenantID, convID, perConv)
		require.NoError(t, err)
		require.Len(t, msgs, perConv)
		assert.Equal(t, uint64(perConv), msgs[perConv-1].Sequence)
	}
}

func TestHistoryConsistentPrefix(t *testing.T) {
	l, tenantID := newTestLog(t)
	convID := uuid.Must(uuid.NewV7()).String()

	for i := 0; i < 3; i++ {
		_, err := l.Append(context.Background(), &model.Message{
			TenantID:       tenantID,
			ConversationID: convID,
			Role:           model.RoleUser,
			Content:        fmt.Sprintf("m%d", i),
		})
		require.NoError(t, err)
	}

	first, err := l.History(context.Background(), tenantID, convID, 10)
	require.NoError(t, err)

	_, err = l.Append(context.Background(), &model.Message{
		TenantID:       tenantID,
		ConversationID: convID,
		Role:           model.RoleAssistant,
		Content:        "reply",
	})
	require.NoError(t, err)

	second, err := l.History(context.Background(), tenantID, convID, 10)
	require.NoError(t, err)
	require.Len(t, second, 4)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "already-returned messages keep their order")
	}
}
