package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/db"
)

// ErrNotFound is returned when no automation matches.
var ErrNotFound = errors.New("automation not found")

const selectColumns = `id, tenant_id, name, trigger_event, webhook_url, secret,
	is_active, is_paused, execution_count, error_count, last_executed_at, created_at, updated_at`

const logColumns = `id, automation_id, tenant_id, trigger_event, status,
	error_detail, payload_summary, duration_ms, created_at, updated_at`

// Service provides automation and dispatch-log persistence.
type Service struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService creates an automation service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		logger:   log.With(slog.String("service", "automation")),
		validate: validator.New(),
	}
}

// Create validates and inserts an automation rule.
func (s *Service) Create(ctx context.Context, tenantID string, params CreateParams) (Automation, error) {
	if err := s.validate.Struct(params); err != nil {
		return Automation{}, fmt.Errorf("invalid automation: %w", err)
	}
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Automation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO automations (tenant_id, name, trigger_event, webhook_url, secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+selectColumns,
		tid, params.Name, params.TriggerEvent, params.WebhookURL, params.Secret)
	return scanAutomation(row)
}

// GetByID returns the automation with the given id, scoped to the tenant.
func (s *Service) GetByID(ctx context.Context, tenantID, id string) (Automation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	autoID, err := db.ParseUUID(id)
	if err != nil {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM automations
		WHERE tenant_id = $1 AND id = $2`, tid, autoID)
	a, err := scanAutomation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, err
}

// List returns the tenant's automations in creation order.
func (s *Service) List(ctx context.Context, tenantID string) ([]Automation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM automations
		WHERE tenant_id = $1
		ORDER BY created_at`, tid)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()
	return collectAutomations(rows)
}

// FirstRunnable returns the oldest active, unpaused automation for the
// trigger. At most one automation fires per event; creation order breaks
// ties deterministically.
func (s *Service) FirstRunnable(ctx context.Context, tenantID, triggerEvent string) (Automation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Automation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM automations
		WHERE tenant_id = $1 AND trigger_event = $2
		  AND is_active AND NOT is_paused
		ORDER BY created_at
		LIMIT 1`, tid, triggerEvent)
	a, err := scanAutomation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Automation{}, fmt.Errorf("%w: no runnable automation for %s", ErrNotFound, triggerEvent)
	}
	return a, err
}

// SetPaused flips the paused flag.
func (s *Service) SetPaused(ctx context.Context, tenantID, id string, paused bool) (Automation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	autoID, err := db.ParseUUID(id)
	if err != nil {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE automations
		SET is_paused = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+selectColumns, tid, autoID, paused)
	a, err := scanAutomation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, err
}

// RecordExecution updates the automation's counters after a dispatch.
func (s *Service) RecordExecution(ctx context.Context, id string, succeeded bool) error {
	autoID, err := db.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	errorDelta := 0
	if !succeeded {
		errorDelta = 1
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE automations
		SET execution_count = execution_count + 1,
		    error_count = error_count + $2,
		    last_executed_at = now(),
		    updated_at = now()
		WHERE id = $1`, autoID, errorDelta)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// CreateLog inserts a pending dispatch log row.
func (s *Service) CreateLog(ctx context.Context, automationID, tenantID, triggerEvent, payloadSummary string) (Log, error) {
	autoID, err := db.ParseUUID(automationID)
	if err != nil {
		return Log{}, fmt.Errorf("invalid automation id: %w", err)
	}
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Log{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO automation_logs (automation_id, tenant_id, trigger_event, status, payload_summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+logColumns,
		autoID, tid, triggerEvent, LogStatusPending, payloadSummary)
	return scanLog(row)
}

// FinalizeLog transitions a pending log row to its terminal status.
func (s *Service) FinalizeLog(ctx context.Context, logID, status, errorDetail string, durationMS int64) error {
	id, err := db.ParseUUID(logID)
	if err != nil {
		return fmt.Errorf("invalid log id: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE automation_logs
		SET status = $2, error_detail = $3, duration_ms = $4, updated_at = now()
		WHERE id = $1 AND status = $5`,
		id, status, errorDetail, durationMS, LogStatusPending)
	if err != nil {
		return fmt.Errorf("finalize log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("log %s is not pending", logID)
	}
	return nil
}

// ListLogs returns an automation's dispatch logs, newest first.
func (s *Service) ListLogs(ctx context.Context, tenantID, automationID string, limit int) ([]Log, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	autoID, err := db.ParseUUID(automationID)
	if err != nil {
		return nil, fmt.Errorf("invalid automation id: %w", err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+logColumns+`
		FROM automation_logs
		WHERE tenant_id = $1 AND automation_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, tid, autoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()
	var items []Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func collectAutomations(rows pgx.Rows) ([]Automation, error) {
	var items []Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func scanAutomation(row pgx.Row) (Automation, error) {
	var (
		id, tenantID             pgtype.UUID
		name, trigger, url       string
		secret                   string
		isActive, isPaused       bool
		execCount, errCount      int64
		lastExecutedAt           pgtype.Timestamptz
		createdAt, updatedAt     pgtype.Timestamptz
	)
	err := row.Scan(&id, &tenantID, &name, &trigger, &url, &secret,
		&isActive, &isPaused, &execCount, &errCount, &lastExecutedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Automation{}, err
		}
		return Automation{}, fmt.Errorf("scan automation: %w", err)
	}
	return Automation{
		ID:             db.UUIDToString(id),
		TenantID:       db.UUIDToString(tenantID),
		Name:           name,
		TriggerEvent:   trigger,
		WebhookURL:     url,
		Secret:         secret,
		IsActive:       isActive,
		IsPaused:       isPaused,
		ExecutionCount: execCount,
		ErrorCount:     errCount,
		LastExecutedAt: lastExecutedAt.Time,
		CreatedAt:      createdAt.Time,
		UpdatedAt:      updatedAt.Time,
	}, nil
}

func scanLog(row pgx.Row) (Log, error) {
	var (
		id, automationID, tenantID pgtype.UUID
		trigger, status            string
		errorDetail, summary       string
		durationMS                 int64
		createdAt, updatedAt       pgtype.Timestamptz
	)
	err := row.Scan(&id, &automationID, &tenantID, &trigger, &status,
		&errorDetail, &summary, &durationMS, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Log{}, err
		}
		return Log{}, fmt.Errorf("scan automation log: %w", err)
	}
	return Log{
		ID:             db.UUIDToString(id),
		AutomationID:   db.UUIDToString(automationID),
		TenantID:       db.UUIDToString(tenantID),
		TriggerEvent:   trigger,
		Status:         status,
		ErrorDetail:    errorDetail,
		PayloadSummary: summary,
		DurationMS:     durationMS,
		CreatedAt:      createdAt.Time,
		UpdatedAt:      updatedAt.Time,
	}, nil
}
