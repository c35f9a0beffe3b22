package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/db"
)

// ErrNotFound is returned when no contact matches.
var ErrNotFound = errors.New("contact not found")

const selectColumns = `id, tenant_id, display_name, identities, status, source, created_at, updated_at`

// Service provides contact persistence and identity resolution.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a contact service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "contact")),
	}
}

// GetByID returns the contact with the given id, scoped to the tenant.
func (s *Service) GetByID(ctx context.Context, tenantID, id string) (Contact, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cid, err := db.ParseUUID(id)
	if err != nil {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM contacts
		WHERE tenant_id = $1 AND id = $2`, tid, cid)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, err
}

// FindByIdentity looks up a contact by a single identity key/value pair
// using the jsonb containment index.
func (s *Service) FindByIdentity(ctx context.Context, tenantID, key, value string) (Contact, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Contact{}, ErrNotFound
	}
	probe, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return Contact{}, fmt.Errorf("marshal identity probe: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM contacts
		WHERE tenant_id = $1 AND identities @> $2::jsonb
		ORDER BY created_at
		LIMIT 1`, tid, string(probe))
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

// Resolve maps a channel identity to a contact, creating a lead when no
// existing contact matches. The second return reports whether a new contact
// was created. Resolution tries the stable subject id first, then the
// username. On a match, any identity keys the stored contact is missing are
// merged in.
func (s *Service) Resolve(ctx context.Context, tenantID string, channelType channel.ChannelType, identity channel.Identity) (Contact, bool, error) {
	keys := IdentityKeys(channelType, identity)
	if len(keys) == 0 {
		return Contact{}, false, fmt.Errorf("identity has no usable keys")
	}

	prefix := channelType.String()
	for _, key := range []string{prefix + "_id", prefix + "_username"} {
		value, ok := keys[key]
		if !ok {
			continue
		}
		found, err := s.FindByIdentity(ctx, tenantID, key, value)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Contact{}, false, err
		}
		merged, err := s.mergeIdentities(ctx, found, keys)
		return merged, false, err
	}

	created, err := s.create(ctx, tenantID, channelType, identity, keys)
	if err != nil {
		return Contact{}, false, err
	}
	return created, true, nil
}

func (s *Service) create(ctx context.Context, tenantID string, channelType channel.ChannelType, identity channel.Identity, keys map[string]string) (Contact, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Contact{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	identities, err := json.Marshal(keys)
	if err != nil {
		return Contact{}, fmt.Errorf("marshal identities: %w", err)
	}
	displayName := identity.DisplayName
	if displayName == "" {
		displayName = identity.Username
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (tenant_id, display_name, identities, status, source)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		RETURNING `+selectColumns,
		tid, displayName, string(identities), StatusLead, channelType.String())
	created, err := scanContact(row)
	if err != nil {
		return Contact{}, err
	}
	s.logger.Info("contact created",
		slog.String("tenant_id", tenantID),
		slog.String("contact_id", created.ID),
		slog.String("channel", channelType.String()))
	return created, nil
}

// mergeIdentities backfills identity keys the stored contact lacks, e.g.
// when a contact first matched by username now has a known subject id.
func (s *Service) mergeIdentities(ctx context.Context, c Contact, keys map[string]string) (Contact, error) {
	missing := make(map[string]string)
	for key, value := range keys {
		if _, ok := c.Identities[key]; !ok {
			missing[key] = value
		}
	}
	if len(missing) == 0 {
		return c, nil
	}
	patch, err := json.Marshal(missing)
	if err != nil {
		return Contact{}, fmt.Errorf("marshal identity patch: %w", err)
	}
	cid, err := db.ParseUUID(c.ID)
	if err != nil {
		return Contact{}, fmt.Errorf("invalid contact id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE contacts
		SET identities = identities || $2::jsonb, updated_at = now()
		WHERE id = $1
		RETURNING `+selectColumns, cid, string(patch))
	return scanContact(row)
}

// List returns the tenant's contacts, newest first.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Contact, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM contacts
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, tid, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	var items []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanContact(row pgx.Row) (Contact, error) {
	var (
		id, tenantID          pgtype.UUID
		displayName           string
		identities            []byte
		status, source        string
		createdAt, updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(&id, &tenantID, &displayName, &identities, &status, &source, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, err
		}
		return Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	c := Contact{
		ID:          db.UUIDToString(id),
		TenantID:    db.UUIDToString(tenantID),
		DisplayName: displayName,
		Identities:  map[string]string{},
		Status:      status,
		Source:      source,
		CreatedAt:   createdAt.Time,
		UpdatedAt:   updatedAt.Time,
	}
	if len(identities) > 0 {
		if err := json.Unmarshal(identities, &c.Identities); err != nil {
			return Contact{}, fmt.Errorf("decode identities: %w", err)
		}
	}
	return c, nil
}
