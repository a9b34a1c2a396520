package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/chatbot-engine/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sequence assignment is a read-modify-write on last_seq; a single
	// writer connection keeps SQLite from returning SQLITE_BUSY under
	// concurrent appends.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		index_namespace TEXT NOT NULL,
		quota_ceiling   INTEGER NOT NULL,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		deleted         INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL REFERENCES tenants(id),
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		last_seq      INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		tenant_id       TEXT NOT NULL,
		seq             INTEGER NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		model           TEXT,
		tokens_in       INTEGER,
		tokens_out      INTEGER,
		latency_ms      INTEGER,
		fallback        INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		UNIQUE (conversation_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS quota_counters (
		tenant_id  TEXT NOT NULL,
		period     TEXT NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, period)
	);

	CREATE TABLE IF NOT EXISTS usage_daily (
		tenant_id TEXT NOT NULL,
		date      TEXT NOT NULL,
		messages  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tenant_id, date)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTenant persists a new tenant.
func (s *SQLiteStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, index_namespace, quota_ceiling, created_at, updated_at, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		t.ID, t.Name, t.IndexNamespace, t.QuotaCeiling,
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// GetTenant returns a live tenant by ID.
func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, index_namespace, quota_ceiling, created_at, updated_at
		 FROM tenants WHERE id = ? AND deleted = 0`, id)

	var t model.Tenant
	var created, updated string
	if err := row.Scan(&t.ID, &t.Name, &t.IndexNamespace, &t.QuotaCeiling, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &t, nil
}

// ListTenants returns all live tenants.
func (s *SQLiteStore) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, index_namespace, quota_ceiling, created_at, updated_at
		 FROM tenants WHERE deleted = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		var created, updated string
		if err := rows.Scan(&t.ID, &t.Name, &t.IndexNamespace, &t.QuotaCeiling, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// DeleteTenant soft-deletes a tenant.
func (s *SQLiteStore) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// AppendMessage appends a message, assigning the next sequence number for
// its conversation inside a transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	now := msg.CreatedAt.UTC().Format(time.RFC3339Nano)

	// Conversation is created on first message.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, tenant_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ConversationID, msg.TenantID, now, now); err != nil {
		return 0, fmt.Errorf("ensure conversation: %w", err)
	}

	var seq uint64
	row := tx.QueryRowContext(ctx,
		`UPDATE conversations
		 SET last_seq = last_seq + 1, message_count = message_count + 1, updated_at = ?
		 WHERE id = ? AND tenant_id = ?
		 RETURNING last_seq`,
		now, msg.ConversationID, msg.TenantID)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConversationNotFound
		}
		return 0, fmt.Errorf("assign sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, tenant_id, seq, role, content, model, tokens_in, tokens_out, latency_ms, fallback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.TenantID, seq, string(msg.Role), msg.Content,
		msg.Model, msg.TokensIn, msg.TokensOut, msg.LatencyMs, boolToInt(msg.Fallback), now); err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return seq, nil
}

// RecentMessages returns the most recent limit messages, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, tenant_id, seq, role, content, model, tokens_in, tokens_out, latency_ms, fallback, created_at
		 FROM (
			SELECT * FROM messages
			WHERE conversation_id = ? AND tenant_id = ?
			ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		conversationID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var role, created string
		var fallback int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.TenantID, &m.Sequence, &role, &m.Content,
			&m.Model, &m.TokensIn, &m.TokensOut, &m.LatencyMs, &fallback, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.Role(role)
		m.Fallback = fallback != 0
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListConversations returns a page of a tenant's conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, tenantID string, limit, offset int) ([]model.Conversation, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE tenant_id = ?`, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, created_at, updated_at, message_count, last_seq
		 FROM conversations WHERE tenant_id = ?
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var created, updated string
		if err := rows.Scan(&c.ID, &c.TenantID, &created, &updated, &c.MessageCount, &c.LastSequence); err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		convs = append(convs, c)
	}
	return convs, total, rows.Err()
}

// IncrementQuota adds one unit to the tenant's durable counter for the period.
func (s *SQLiteStore) IncrementQuota(ctx context.Context, tenantID, period string) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO quota_counters (tenant_id, period, count, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (tenant_id, period) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
		 RETURNING count`,
		tenantID, period, time.Now().UTC().Format(time.RFC3339Nano))

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("increment quota: %w", err)
	}
	return count, nil
}

// QuotaCount returns the durable count for a tenant and period.
func (s *SQLiteStore) QuotaCount(ctx context.Context, tenantID, period string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM quota_counters WHERE tenant_id = ? AND period = ?`,
		tenantID, period).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota count: %w", err)
	}
	return count, nil
}

// QuotaCounts returns all durable counts for a period keyed by tenant.
func (s *SQLiteStore) QuotaCounts(ctx context.Context, period string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, count FROM quota_counters WHERE period = ?`, period)
	if err != nil {
		return nil, fmt.Errorf("quota counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var tenantID string
		var count int64
		if err := rows.Scan(&tenantID, &count); err != nil {
			return nil, fmt.Errorf("scan quota count: %w", err)
		}
		counts[tenantID] = count
	}
	return counts, rows.Err()
}

// IncrementUsage upserts the per-day analytics counter for a tenant.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, tenantID, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_daily (tenant_id, date, messages)
		 VALUES (?, ?, 1)
		 ON CONFLICT (tenant_id, date) DO UPDATE SET messages = messages + 1`,
		tenantID, date)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// Usage returns up to days of daily analytics, most recent first.
func (s *SQLiteStore) Usage(ctx context.Context, tenantID string, days int) ([]model.UsageDay, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, messages FROM usage_daily
		 WHERE tenant_id = ? ORDER BY date DESC LIMIT ?`,
		tenantID, days)
	if err != nil {
		return nil, fmt.Errorf("usage: %w", err)
	}
	defer rows.Close()

	var usage []model.UsageDay
	for rows.Next() {
		var u model.UsageDay
		if err := rows.Scan(&u.Date, &u.Messages); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
