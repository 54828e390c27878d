// Package crm is the customer-relationship database behind the marketing
// tools: customer records, campaign metadata, and sent-email records.
package crm

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("crm: not found")

// CampaignTypes is the closed set of accepted campaign types.
var CampaignTypes = []string{
	"loyalty", "referral", "re-engagement", "at risk", "new customer",
	"champion", "about to sleep", "lost", "potential loyalist",
}

// EmailStatuses is the closed set of accepted email delivery statuses.
var EmailStatuses = []string{
	"sent", "failed", "queued", "opened", "bounced", "delivered", "clicked", "unsubscribed",
}

const (
	defaultBusyTimeout = 5 * time.Second
	maxQueryRows       = 200
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("crm db path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create crm directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open crm db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize crm schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type Customer struct {
	CustomerID int64
	Name       string
	Email      string
	Region     string
	Segment    string
	TotalSpend float64
}

func (s *Store) UpsertCustomer(ctx context.Context, c Customer) error {
	if c.CustomerID <= 0 {
		return fmt.Errorf("customer_id is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("email is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm (customer_id, name, email, region, segment, total_spend)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			region = excluded.region,
			segment = excluded.segment,
			total_spend = excluded.total_spend`,
		c.CustomerID, c.Name, c.Email, c.Region, c.Segment, c.TotalSpend,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer %d: %w", c.CustomerID, err)
	}
	return nil
}

// CustomerEmail resolves the recipient address for a customer id.
func (s *Store) CustomerEmail(ctx context.Context, customerID int64) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx,
		"SELECT email FROM crm WHERE customer_id = ?", customerID,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up customer %d: %w", customerID, err)
	}
	return email, nil
}

func (s *Store) CreateCampaign(ctx context.Context, name, campaignType, description, status string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("campaign name is required")
	}
	if status == "" {
		status = "draft"
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketing_campaigns (id, name, type, description, status)
		VALUES (?, ?, ?, ?, ?)`,
		id, name, campaignType, description, status,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create campaign: %w", err)
	}
	return id, nil
}

type EmailRecord struct {
	CampaignID string
	CustomerID int64
	Email      string
	Subject    string
	Body       string
	Status     string
	Opened     bool
}

func (s *Store) RecordEmail(ctx context.Context, rec EmailRecord) error {
	if rec.Status == "" {
		rec.Status = "sent"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigning_emails (campaign_id, customer_id, email, subject, body, status, opened)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CampaignID, rec.CustomerID, rec.Email, rec.Subject, rec.Body, rec.Status, rec.Opened,
	)
	if err != nil {
		return fmt.Errorf("failed to record campaign email: %w", err)
	}
	return nil
}

// Query runs a read-only SQL statement and returns rows as column/value
// maps, capped at maxQueryRows. Anything other than a single SELECT (or
// WITH ... SELECT) statement is rejected.
func (s *Store) Query(ctx context.Context, query string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("query is required")
	}
	lowered := strings.ToLower(trimmed)
	if !strings.HasPrefix(lowered, "select") && !strings.HasPrefix(lowered, "with") {
		return nil, fmt.Errorf("only read-only SELECT queries are allowed")
	}
	if strings.Contains(strings.TrimSuffix(trimmed, ";"), ";") {
		return nil, fmt.Errorf("multiple statements are not allowed")
	}

	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		if len(out) >= maxQueryRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query iteration failed: %w", err)
	}
	return out, nil
}
