package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/db"
)

// ErrNotFound is returned when no tenant (or settings row) matches.
var ErrNotFound = errors.New("tenant not found")

// Service provides tenant and channel-settings access.
type Service struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService creates a tenant service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		logger:   log.With(slog.String("service", "tenant")),
		validate: validator.New(),
	}
}

// Create inserts a tenant.
func (s *Service) Create(ctx context.Context, name string) (Tenant, error) {
	if name == "" {
		return Tenant{}, fmt.Errorf("tenant name is required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at`, name)
	return scanTenant(row)
}

// GetByID returns the tenant with the given id.
func (s *Service) GetByID(ctx context.Context, id string) (Tenant, error) {
	tenantID, err := db.ParseUUID(id)
	if err != nil {
		return Tenant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM tenants
		WHERE id = $1`, tenantID)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// List returns all tenants ordered by creation time.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM tenants
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()
	var items []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// ResolveByCredential maps an inbound credential hint to its tenant using
// the indexed settings columns. A webhook secret match wins over a bot token
// match. Both hints empty, or no match, yields ErrNotFound.
func (s *Service) ResolveByCredential(ctx context.Context, channelType channel.ChannelType, secretHint, tokenHint string) (Tenant, ChannelSettings, error) {
	if secretHint != "" {
		t, settings, err := s.resolveBy(ctx, `s.webhook_secret = $2 AND s.webhook_secret <> ''`, channelType, secretHint)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return t, settings, err
		}
	}
	if tokenHint != "" {
		return s.resolveBy(ctx, `s.bot_token = $2`, channelType, tokenHint)
	}
	return Tenant{}, ChannelSettings{}, ErrNotFound
}

func (s *Service) resolveBy(ctx context.Context, predicate string, channelType channel.ChannelType, hint string) (Tenant, ChannelSettings, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT t.id, t.name, t.created_at, t.updated_at,
		       s.tenant_id, s.channel, s.bot_token, s.webhook_secret, s.webhook_url,
		       s.dispatch_secret, s.webhook_status, s.webhook_checked_at, s.created_at, s.updated_at
		FROM tenant_channel_settings s
		JOIN tenants t ON t.id = s.tenant_id
		WHERE s.channel = $1 AND `+predicate+`
		ORDER BY t.created_at
		LIMIT 1`, channelType.String(), hint)
	return scanTenantWithSettings(row)
}

// OldestConfigured returns the oldest tenant that has settings for the
// channel. Single-tenant deployments rely on this as the webhook fallback.
func (s *Service) OldestConfigured(ctx context.Context, channelType channel.ChannelType) (Tenant, ChannelSettings, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT t.id, t.name, t.created_at, t.updated_at,
		       s.tenant_id, s.channel, s.bot_token, s.webhook_secret, s.webhook_url,
		       s.dispatch_secret, s.webhook_status, s.webhook_checked_at, s.created_at, s.updated_at
		FROM tenant_channel_settings s
		JOIN tenants t ON t.id = s.tenant_id
		WHERE s.channel = $1
		ORDER BY t.created_at
		LIMIT 1`, channelType.String())
	return scanTenantWithSettings(row)
}

// GetSettings returns the channel settings for a tenant.
func (s *Service) GetSettings(ctx context.Context, tenantID string, channelType channel.ChannelType) (ChannelSettings, error) {
	id, err := db.ParseUUID(tenantID)
	if err != nil {
		return ChannelSettings{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, channel, bot_token, webhook_secret, webhook_url,
		       dispatch_secret, webhook_status, webhook_checked_at, created_at, updated_at
		FROM tenant_channel_settings
		WHERE tenant_id = $1 AND channel = $2`, id, channelType.String())
	settings, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChannelSettings{}, fmt.Errorf("%w: no %s settings for tenant %s", ErrNotFound, channelType, tenantID)
	}
	return settings, err
}

// ListSettings returns every settings row for a channel, oldest tenant
// first. The webhook reconciler walks this list.
func (s *Service) ListSettings(ctx context.Context, channelType channel.ChannelType) ([]ChannelSettings, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, channel, bot_token, webhook_secret, webhook_url,
		       dispatch_secret, webhook_status, webhook_checked_at, created_at, updated_at
		FROM tenant_channel_settings
		WHERE channel = $1
		ORDER BY created_at`, channelType.String())
	if err != nil {
		return nil, fmt.Errorf("list channel settings: %w", err)
	}
	defer rows.Close()
	var items []ChannelSettings
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, settings)
	}
	return items, rows.Err()
}

// UpsertSettings validates and writes the settings row for (tenant, channel).
func (s *Service) UpsertSettings(ctx context.Context, tenantID string, params UpsertSettingsParams) (ChannelSettings, error) {
	if err := s.validate.Struct(params); err != nil {
		return ChannelSettings{}, fmt.Errorf("invalid channel settings: %w", err)
	}
	id, err := db.ParseUUID(tenantID)
	if err != nil {
		return ChannelSettings{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenant_channel_settings
			(tenant_id, channel, bot_token, webhook_secret, webhook_url, dispatch_secret)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, channel) DO UPDATE SET
			bot_token = EXCLUDED.bot_token,
			webhook_secret = EXCLUDED.webhook_secret,
			webhook_url = EXCLUDED.webhook_url,
			dispatch_secret = EXCLUDED.dispatch_secret,
			updated_at = now()
		RETURNING tenant_id, channel, bot_token, webhook_secret, webhook_url,
		          dispatch_secret, webhook_status, webhook_checked_at, created_at, updated_at`,
		id, params.Channel.String(), params.BotToken, params.WebhookSecret,
		params.WebhookURL, params.DispatchSecret)
	settings, err := scanSettings(row)
	if err != nil {
		return ChannelSettings{}, err
	}
	s.logger.Info("channel settings updated",
		slog.String("tenant_id", tenantID),
		slog.String("channel", params.Channel.String()))
	return settings, nil
}

// UpdateWebhookStatus records the outcome of a webhook registration check.
func (s *Service) UpdateWebhookStatus(ctx context.Context, tenantID string, channelType channel.ChannelType, status string, checkedAt time.Time) error {
	id, err := db.ParseUUID(tenantID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenant_channel_settings
		SET webhook_status = $3, webhook_checked_at = $4, updated_at = now()
		WHERE tenant_id = $1 AND channel = $2`,
		id, channelType.String(), status, db.ToTimestamptz(checkedAt))
	if err != nil {
		return fmt.Errorf("update webhook status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no %s settings for tenant %s", ErrNotFound, channelType, tenantID)
	}
	return nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var (
		id                   pgtype.UUID
		name                 string
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, err
		}
		return Tenant{}, fmt.Errorf("scan tenant: %w", err)
	}
	return Tenant{
		ID:        db.UUIDToString(id),
		Name:      name,
		CreatedAt: createdAt.Time,
		UpdatedAt: updatedAt.Time,
	}, nil
}

func scanTenantWithSettings(row pgx.Row) (Tenant, ChannelSettings, error) {
	var (
		tenantID, settingsTenantID       pgtype.UUID
		name, channelType, botToken      string
		webhookSecret, webhookURL        string
		dispatchSecret, webhookStatus    string
		tCreatedAt, tUpdatedAt           pgtype.Timestamptz
		checkedAt, sCreatedAt, sUpdated  pgtype.Timestamptz
	)
	err := row.Scan(&tenantID, &name, &tCreatedAt, &tUpdatedAt,
		&settingsTenantID, &channelType, &botToken, &webhookSecret, &webhookURL,
		&dispatchSecret, &webhookStatus, &checkedAt, &sCreatedAt, &sUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ChannelSettings{}, ErrNotFound
		}
		return Tenant{}, ChannelSettings{}, fmt.Errorf("scan tenant settings: %w", err)
	}
	t := Tenant{
		ID:        db.UUIDToString(tenantID),
		Name:      name,
		CreatedAt: tCreatedAt.Time,
		UpdatedAt: tUpdatedAt.Time,
	}
	settings := ChannelSettings{
		TenantID:         db.UUIDToString(settingsTenantID),
		Channel:          channel.ChannelType(channelType),
		BotToken:         botToken,
		WebhookSecret:    webhookSecret,
		WebhookURL:       webhookURL,
		DispatchSecret:   dispatchSecret,
		WebhookStatus:    webhookStatus,
		WebhookCheckedAt: checkedAt.Time,
		CreatedAt:        sCreatedAt.Time,
		UpdatedAt:        sUpdated.Time,
	}
	return t, settings, nil
}

func scanSettings(row pgx.Row) (ChannelSettings, error) {
	var (
		tenantID                        pgtype.UUID
		channelType, botToken           string
		webhookSecret, webhookURL       string
		dispatchSecret, webhookStatus   string
		checkedAt, createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&tenantID, &channelType, &botToken, &webhookSecret, &webhookURL,
		&dispatchSecret, &webhookStatus, &checkedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChannelSettings{}, err
		}
		return ChannelSettings{}, fmt.Errorf("scan channel settings: %w", err)
	}
	return ChannelSettings{
		TenantID:         db.UUIDToString(tenantID),
		Channel:          channel.ChannelType(channelType),
		BotToken:         botToken,
		WebhookSecret:    webhookSecret,
		WebhookURL:       webhookURL,
		DispatchSecret:   dispatchSecret,
		WebhookStatus:    webhookStatus,
		WebhookCheckedAt: checkedAt.Time,
		CreatedAt:        createdAt.Time,
		UpdatedAt:        updatedAt.Time,
	}, nil
}
