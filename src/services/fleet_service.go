package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keyroute/keyroute-server/src/models"
)

// FleetService manages backend servers and their upstream keys. Upstream
// secrets pass through the encryptor on every write and read.
type FleetService struct {
	pool      *pgxpool.Pool
	encryptor *Encryptor
}

// NewFleetService creates a new fleet service
func NewFleetService(pool *pgxpool.Pool, encryptor *Encryptor) *FleetService {
	return &FleetService{pool: pool, encryptor: encryptor}
}

// CreateServer registers a backend server
func (fs *FleetService) CreateServer(ctx context.Context, name, hostname string) (*models.Server, error) {
	srv := &models.Server{}
	err := fs.pool.QueryRow(ctx, `
		INSERT INTO servers (id, name, hostname, is_active, created_at)
		VALUES ($1, $2, $3, true, NOW())
		RETURNING id, name, hostname, is_active, created_at
	`, uuid.New(), name, hostname).Scan(&srv.ID, &srv.Name, &srv.Hostname, &srv.IsActive, &srv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return srv, nil
}

// UpdateServer replaces the editable fields of a server
func (fs *FleetService) UpdateServer(ctx context.Context, id uuid.UUID, name, hostname string, isActive bool) (*models.Server, error) {
	srv := &models.Server{}
	err := fs.pool.QueryRow(ctx, `
		UPDATE servers SET name = $2, hostname = $3, is_active = $4
		WHERE id = $1
		RETURNING id, name, hostname, is_active, created_at
	`, id, name, hostname, isActive).Scan(&srv.ID, &srv.Name, &srv.Hostname, &srv.IsActive, &srv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("failed to update server: %w", err)
	}
	return srv, nil
}

// GetServers returns all servers with their key counts, newest first
func (fs *FleetService) GetServers(ctx context.Context) ([]*models.Server, error) {
	rows, err := fs.pool.Query(ctx, `
		SELECT s.id, s.name, s.hostname, s.is_active, s.created_at,
		       (SELECT COUNT(*) FROM upstream_keys k WHERE k.server_id = s.id)
		FROM servers s
		ORDER BY s.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		srv := &models.Server{}
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Hostname, &srv.IsActive, &srv.CreatedAt, &srv.KeyCount); err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		servers = append(servers, srv)
	}

	return servers, rows.Err()
}

// DeleteServer removes a server and cascades to its upstream keys
func (fs *FleetService) DeleteServer(ctx context.Context, id uuid.UUID) error {
	result, err := fs.pool.Exec(ctx, "DELETE FROM servers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrServerNotFound
	}
	return nil
}

// CreateUpstreamKey adds an upstream key to a server, encrypting its secret
func (fs *FleetService) CreateUpstreamKey(ctx context.Context, serverID uuid.UUID, name, cipher, secret string, port int) (*models.UpstreamKey, error) {
	stored, err := fs.encryptor.Encrypt([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	uk := &models.UpstreamKey{Secret: secret}
	err = fs.pool.QueryRow(ctx, `
		INSERT INTO upstream_keys (id, server_id, name, cipher, secret, port, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, NOW())
		RETURNING id, server_id, name, cipher, port, is_active, created_at
	`, uuid.New(), serverID, name, cipher, stored, port).Scan(
		&uk.ID, &uk.ServerID, &uk.Name, &uk.Cipher, &uk.Port, &uk.IsActive, &uk.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream key: %w", err)
	}
	return uk, nil
}

// UpdateUpstreamKey replaces the editable fields of an upstream key
func (fs *FleetService) UpdateUpstreamKey(ctx context.Context, id uuid.UUID, name, cipher, secret string, port int, isActive bool) (*models.UpstreamKey, error) {
	stored, err := fs.encryptor.Encrypt([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	uk := &models.UpstreamKey{Secret: secret}
	err = fs.pool.QueryRow(ctx, `
		UPDATE upstream_keys SET name = $2, cipher = $3, secret = $4, port = $5, is_active = $6
		WHERE id = $1
		RETURNING id, server_id, name, cipher, port, is_active, created_at
	`, id, name, cipher, stored, port, isActive).Scan(
		&uk.ID, &uk.ServerID, &uk.Name, &uk.Cipher, &uk.Port, &uk.IsActive, &uk.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUpstreamKeyNotFound
		}
		return nil, fmt.Errorf("failed to update upstream key: %w", err)
	}
	return uk, nil
}

// GetServerKeys returns the upstream keys of one server with decrypted secrets
func (fs *FleetService) GetServerKeys(ctx context.Context, serverID uuid.UUID) ([]*models.UpstreamKey, error) {
	rows, err := fs.pool.Query(ctx, `
		SELECT id, server_id, name, cipher, secret, port, is_active, created_at
		FROM upstream_keys
		WHERE server_id = $1
		ORDER BY created_at DESC
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query upstream keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.UpstreamKey
	for rows.Next() {
		uk := &models.UpstreamKey{}
		var stored []byte
		if err := rows.Scan(&uk.ID, &uk.ServerID, &uk.Name, &uk.Cipher, &stored, &uk.Port, &uk.IsActive, &uk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upstream key: %w", err)
		}
		secret, err := fs.encryptor.Decrypt(stored)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret: %w", err)
		}
		uk.Secret = string(secret)
		keys = append(keys, uk)
	}

	return keys, rows.Err()
}

// DeleteUpstreamKey removes an upstream key and its member links
func (fs *FleetService) DeleteUpstreamKey(ctx context.Context, id uuid.UUID) error {
	result, err := fs.pool.Exec(ctx, "DELETE FROM upstream_keys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete upstream key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUpstreamKeyNotFound
	}
	return nil
}

// GetMembers returns the member keys of a dynamic key joined with their
// servers, secrets decrypted, ready for dispatch selection
func (fs *FleetService) GetMembers(ctx context.Context, dynamicKeyID uuid.UUID) ([]models.Member, error) {
	rows, err := fs.pool.Query(ctx, `
		SELECT k.id, s.id, s.name, s.hostname, k.port, k.cipher, k.secret, k.is_active, s.is_active
		FROM dynamic_key_members m
		JOIN upstream_keys k ON k.id = m.upstream_key_id
		JOIN servers s ON s.id = k.server_id
		WHERE m.dynamic_key_id = $1
		ORDER BY k.id
	`, dynamicKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		var stored []byte
		if err := rows.Scan(&m.KeyID, &m.ServerID, &m.ServerName, &m.Hostname, &m.Port, &m.Cipher, &stored, &m.KeyActive, &m.ServerActive); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		secret, err := fs.encryptor.Decrypt(stored)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret: %w", err)
		}
		m.Secret = string(secret)
		members = append(members, m)
	}

	return members, rows.Err()
}
