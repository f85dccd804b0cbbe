package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keyroute/keyroute-server/src/models"
)

// DynamicKeyParams carries the fields the dashboard form submits
type DynamicKeyParams struct {
	Name      string
	Path      string
	Algorithm models.Algorithm
	Prefix    models.PrefixType
	ExpiresAt *time.Time
	IsActive  bool
}

// KeyService handles dynamic key operations
type KeyService struct {
	pool *pgxpool.Pool
}

// NewKeyService creates a new key service
func NewKeyService(pool *pgxpool.Pool) *KeyService {
	return &KeyService{pool: pool}
}

// validateParams rejects unknown algorithms and prefix types before they
// reach the database
func validateParams(p DynamicKeyParams) error {
	if !p.Algorithm.Valid() {
		return ErrInvalidAlgorithm
	}
	if !p.Prefix.Valid() {
		return ErrInvalidPrefix
	}
	return nil
}

// GeneratePath generates a random path slug for keys created without one
func GeneratePath() (string, error) {
	pathBytes := make([]byte, 8)
	if _, err := rand.Read(pathBytes); err != nil {
		return "", fmt.Errorf("failed to generate path: %w", err)
	}
	return hex.EncodeToString(pathBytes), nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateDynamicKey creates a new dynamic key. A blank path gets a random slug.
func (ks *KeyService) CreateDynamicKey(ctx context.Context, params DynamicKeyParams) (*models.DynamicKey, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	path := params.Path
	if path == "" {
		var err error
		path, err = GeneratePath()
		if err != nil {
			return nil, err
		}
	}

	dk := &models.DynamicKey{}
	err := ks.pool.QueryRow(ctx, `
		INSERT INTO dynamic_keys (id, name, path, algorithm, prefix, expires_at, is_active, created_at, connection_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), 0)
		RETURNING id, name, path, algorithm, prefix, expires_at, is_active, created_at, last_accessed, connection_count
	`, uuid.New(), params.Name, path, string(params.Algorithm), string(params.Prefix), params.ExpiresAt, params.IsActive).Scan(
		&dk.ID, &dk.Name, &dk.Path, &dk.Algorithm, &dk.Prefix, &dk.ExpiresAt,
		&dk.IsActive, &dk.CreatedAt, &dk.LastAccessed, &dk.ConnectionCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPathTaken
		}
		return nil, fmt.Errorf("failed to create dynamic key: %w", err)
	}

	return dk, nil
}

// UpdateDynamicKey replaces the editable fields of an existing key
func (ks *KeyService) UpdateDynamicKey(ctx context.Context, id uuid.UUID, params DynamicKeyParams) (*models.DynamicKey, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if params.Path == "" {
		var err error
		params.Path, err = GeneratePath()
		if err != nil {
			return nil, err
		}
	}

	dk := &models.DynamicKey{}
	err := ks.pool.QueryRow(ctx, `
		UPDATE dynamic_keys
		SET name = $2, path = $3, algorithm = $4, prefix = $5, expires_at = $6, is_active = $7
		WHERE id = $1
		RETURNING id, name, path, algorithm, prefix, expires_at, is_active, created_at, last_accessed, connection_count
	`, id, params.Name, params.Path, string(params.Algorithm), string(params.Prefix), params.ExpiresAt, params.IsActive).Scan(
		&dk.ID, &dk.Name, &dk.Path, &dk.Algorithm, &dk.Prefix, &dk.ExpiresAt,
		&dk.IsActive, &dk.CreatedAt, &dk.LastAccessed, &dk.ConnectionCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPathTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to update dynamic key: %w", err)
	}

	return dk, nil
}

// GetDynamicKey retrieves a dynamic key by ID, with its member count
func (ks *KeyService) GetDynamicKey(ctx context.Context, id uuid.UUID) (*models.DynamicKey, error) {
	dk := &models.DynamicKey{}
	err := ks.pool.QueryRow(ctx, `
		SELECT dk.id, dk.name, dk.path, dk.algorithm, dk.prefix, dk.expires_at,
		       dk.is_active, dk.created_at, dk.last_accessed, dk.connection_count,
		       (SELECT COUNT(*) FROM dynamic_key_members m WHERE m.dynamic_key_id = dk.id)
		FROM dynamic_keys dk
		WHERE dk.id = $1
	`, id).Scan(
		&dk.ID, &dk.Name, &dk.Path, &dk.Algorithm, &dk.Prefix, &dk.ExpiresAt,
		&dk.IsActive, &dk.CreatedAt, &dk.LastAccessed, &dk.ConnectionCount, &dk.MemberCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get dynamic key: %w", err)
	}

	return dk, nil
}

// GetDynamicKeyByPath retrieves a dynamic key by its path slug
func (ks *KeyService) GetDynamicKeyByPath(ctx context.Context, path string) (*models.DynamicKey, error) {
	dk := &models.DynamicKey{}
	err := ks.pool.QueryRow(ctx, `
		SELECT id, name, path, algorithm, prefix, expires_at, is_active, created_at, last_accessed, connection_count
		FROM dynamic_keys
		WHERE path = $1
	`, path).Scan(
		&dk.ID, &dk.Name, &dk.Path, &dk.Algorithm, &dk.Prefix, &dk.ExpiresAt,
		&dk.IsActive, &dk.CreatedAt, &dk.LastAccessed, &dk.ConnectionCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get dynamic key by path: %w", err)
	}

	return dk, nil
}

// GetDynamicKeys returns all dynamic keys with member counts, newest first
func (ks *KeyService) GetDynamicKeys(ctx context.Context) ([]*models.DynamicKey, error) {
	rows, err := ks.pool.Query(ctx, `
		SELECT dk.id, dk.name, dk.path, dk.algorithm, dk.prefix, dk.expires_at,
		       dk.is_active, dk.created_at, dk.last_accessed, dk.connection_count,
		       (SELECT COUNT(*) FROM dynamic_key_members m WHERE m.dynamic_key_id = dk.id)
		FROM dynamic_keys dk
		ORDER BY dk.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dynamic keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.DynamicKey
	for rows.Next() {
		dk := &models.DynamicKey{}
		if err := rows.Scan(
			&dk.ID, &dk.Name, &dk.Path, &dk.Algorithm, &dk.Prefix, &dk.ExpiresAt,
			&dk.IsActive, &dk.CreatedAt, &dk.LastAccessed, &dk.ConnectionCount, &dk.MemberCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dynamic key: %w", err)
		}
		keys = append(keys, dk)
	}

	return keys, rows.Err()
}

// DeleteDynamicKey removes a dynamic key and its member links
func (ks *KeyService) DeleteDynamicKey(ctx context.Context, id uuid.UUID) error {
	result, err := ks.pool.Exec(ctx, "DELETE FROM dynamic_keys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete dynamic key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// SetMembers replaces the member set of a dynamic key in a single transaction
func (ks *KeyService) SetMembers(ctx context.Context, id uuid.UUID, memberIDs []uuid.UUID) error {
	tx, err := ks.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM dynamic_keys WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check dynamic key: %w", err)
	}
	if !exists {
		return ErrKeyNotFound
	}

	if _, err := tx.Exec(ctx, "DELETE FROM dynamic_key_members WHERE dynamic_key_id = $1", id); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}

	for _, memberID := range memberIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dynamic_key_members (dynamic_key_id, upstream_key_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, id, memberID); err != nil {
			return fmt.Errorf("failed to add member %s: %w", memberID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateKeyUsageStats updates last_accessed and increments connection_count
func (ks *KeyService) UpdateKeyUsageStats(ctx context.Context, id uuid.UUID) error {
	_, err := ks.pool.Exec(ctx, `
		UPDATE dynamic_keys SET last_accessed = NOW(), connection_count = connection_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to update key usage stats: %w", err)
	}
	return nil
}
