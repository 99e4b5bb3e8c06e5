package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Postgres implements Store on a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool to the given DSN
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping verifies connectivity
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// TenantConfig returns the config row for a tenant id
func (p *Postgres) TenantConfig(ctx context.Context, tenantID string) (*TenantConfig, error) {
	const q = `
		SELECT tenant_id, is_active, branch_name, branch_head_phone_number,
		       assistant_prompt, analyzer_prompt, allowed_call_types,
		       greeting_language, COALESCE(welcome_message, '')
		FROM tenant_configs
		WHERE tenant_id = $1`

	var cfg TenantConfig
	err := p.pool.QueryRow(ctx, q, tenantID).Scan(
		&cfg.TenantID,
		&cfg.IsActive,
		&cfg.BranchName,
		&cfg.BranchHeadPhone,
		&cfg.AssistantPrompt,
		&cfg.AnalyzerPrompt,
		&cfg.AllowedCallTypes,
		&cfg.GreetingLanguage,
		&cfg.WelcomeMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant config %q: %w", tenantID, err)
	}
	return &cfg, nil
}

// InsertCallDetails inserts the finalized call record
func (p *Postgres) InsertCallDetails(ctx context.Context, rec *CallRecord) (int64, error) {
	const q = `
		INSERT INTO call_details (call_sid, stream_sid, tenant_id, transcript, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id`

	var id int64
	err := p.pool.QueryRow(ctx, q, rec.CallSid, rec.StreamSid, rec.TenantID, rec.Transcript).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert call_details for %q: %w", rec.CallSid, err)
	}
	return id, nil
}

// UpdateCallAnalysis writes call_type and critical_call_details
func (p *Postgres) UpdateCallAnalysis(ctx context.Context, callSid, callType string, details []byte) error {
	const q = `
		UPDATE call_details
		SET call_type = $2, critical_call_details = $3, updated_at = now()
		WHERE call_sid = $1`

	tag, err := p.pool.Exec(ctx, q, callSid, callType, details)
	if err != nil {
		return fmt.Errorf("update call analysis for %q: %w", callSid, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update call analysis for %q: %w", callSid, ErrNotFound)
	}
	return nil
}

// UpdateTokenUsage writes the ai_token_usage summary
func (p *Postgres) UpdateTokenUsage(ctx context.Context, callSid string, summary []byte) error {
	const q = `
		UPDATE call_details
		SET ai_token_usage = $2, updated_at = now()
		WHERE call_sid = $1`

	tag, err := p.pool.Exec(ctx, q, callSid, summary)
	if err != nil {
		return fmt.Errorf("update token usage for %q: %w", callSid, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update token usage for %q: %w", callSid, ErrNotFound)
	}
	return nil
}

// InsertExotelCallDetails inserts the fetched telephony record
func (p *Postgres) InsertExotelCallDetails(ctx context.Context, d *ExotelCallDetail) error {
	const q = `
		INSERT INTO exotel_call_details
			(call_sid, from_number, to_number, status, start_time, end_time,
			 duration, price, direction, recording_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`

	_, err := p.pool.Exec(ctx, q,
		d.CallSid, d.FromNumber, d.ToNumber, d.Status, d.StartTime, d.EndTime,
		d.Duration, d.Price, d.Direction, d.RecordingURL)
	if err != nil {
		return fmt.Errorf("insert exotel_call_details for %q: %w", d.CallSid, err)
	}
	return nil
}

// InsertNotification records one dispatched notification outcome
func (p *Postgres) InsertNotification(ctx context.Context, n *Notification) error {
	const q = `
		INSERT INTO notifications
			(call_sid, notification_type, recipient, recipient_type, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`

	_, err := p.pool.Exec(ctx, q,
		n.CallSid, n.NotificationType, n.Recipient, n.RecipientType, n.Status, n.Payload)
	if err != nil {
		return fmt.Errorf("insert notification for %q: %w", n.CallSid, err)
	}
	return nil
}
