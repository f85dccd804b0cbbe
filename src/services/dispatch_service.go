package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keyroute/keyroute-server/src/models"
)

// DispatchService resolves an access path to one upstream key per connection
// according to the dynamic key's load-balancer algorithm.
type DispatchService struct {
	pool         *pgxpool.Pool
	keyService   *KeyService
	fleetService *FleetService
	intn         func(n int) int
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(pool *pgxpool.Pool, keyService *KeyService, fleetService *FleetService) *DispatchService {
	return &DispatchService{
		pool:         pool,
		keyService:   keyService,
		fleetService: fleetService,
		intn:         rand.IntN,
	}
}

// DispatchResult is one resolved connection
type DispatchResult struct {
	Key    *models.DynamicKey
	Member models.Member
	Prefix *models.PrefixInfo
}

// SelectMember applies the load-balancer algorithm to the eligible subset of
// members. intn must return a uniform value in [0, n).
func SelectMember(alg models.Algorithm, members []models.Member, clientIP string, intn func(n int) int) (models.Member, error) {
	eligible := make([]models.Member, 0, len(members))
	for _, m := range members {
		if m.Eligible() {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) == 0 {
		return models.Member{}, ErrNoEligibleMembers
	}

	switch alg {
	case models.AlgorithmRandomKey:
		return eligible[intn(len(eligible))], nil

	case models.AlgorithmRandomServerKey:
		// Pick a server first so servers with many keys do not dominate
		byServer := make(map[uuid.UUID][]models.Member)
		for _, m := range eligible {
			byServer[m.ServerID] = append(byServer[m.ServerID], m)
		}
		serverIDs := make([]uuid.UUID, 0, len(byServer))
		for id := range byServer {
			serverIDs = append(serverIDs, id)
		}
		sort.Slice(serverIDs, func(i, j int) bool { return serverIDs[i].String() < serverIDs[j].String() })
		serverKeys := byServer[serverIDs[intn(len(serverIDs))]]
		return serverKeys[intn(len(serverKeys))], nil

	case models.AlgorithmClientIPHash:
		// Stable affinity: sort by key ID so the mapping does not depend on
		// query order, then index by FNV-1a of the client IP
		sort.Slice(eligible, func(i, j int) bool { return eligible[i].KeyID.String() < eligible[j].KeyID.String() })
		h := fnv.New64a()
		_, _ = h.Write([]byte(clientIP))
		return eligible[h.Sum64()%uint64(len(eligible))], nil

	default:
		return models.Member{}, ErrInvalidAlgorithm
	}
}

// Resolve looks up the dynamic key for path, checks its lifecycle, selects a
// member, records the access and returns the connection material.
func (ds *DispatchService) Resolve(ctx context.Context, path, clientIP string) (*DispatchResult, error) {
	dk, err := ds.keyService.GetDynamicKeyByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if !dk.IsActive {
		return nil, ErrKeyInactive
	}
	if dk.Expired(time.Now()) {
		return nil, ErrKeyExpired
	}

	members, err := ds.fleetService.GetMembers(ctx, dk.ID)
	if err != nil {
		return nil, err
	}

	member, err := SelectMember(dk.Algorithm, members, clientIP, ds.intn)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{Key: dk, Member: member}
	if info, ok := models.LookupPrefix(dk.Prefix); ok {
		result.Prefix = &info
	}

	// Stats and access records are best effort; the client already has a
	// selection and must not see a failure here
	if err := ds.keyService.UpdateKeyUsageStats(ctx, dk.ID); err != nil {
		return result, nil
	}
	_ = ds.recordAccess(ctx, dk.ID, member.KeyID, clientIP)

	return result, nil
}

// recordAccess inserts one access record row
func (ds *DispatchService) recordAccess(ctx context.Context, dynamicKeyID, upstreamKeyID uuid.UUID, clientIP string) error {
	_, err := ds.pool.Exec(ctx, `
		INSERT INTO access_records (id, dynamic_key_id, upstream_key_id, client_ip, accessed_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.New(), dynamicKeyID, upstreamKeyID, clientIP)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// GetAccessRecords returns recent access records with pagination, newest first
func (ds *DispatchService) GetAccessRecords(ctx context.Context, limit, offset int) ([]models.AccessRecord, int, error) {
	var total int
	if err := ds.pool.QueryRow(ctx, "SELECT COUNT(*) FROM access_records").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count access records: %w", err)
	}

	rows, err := ds.pool.Query(ctx, `
		SELECT id, dynamic_key_id, upstream_key_id, client_ip, accessed_at
		FROM access_records
		ORDER BY accessed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query access records: %w", err)
	}
	defer rows.Close()

	var records []models.AccessRecord
	for rows.Next() {
		var r models.AccessRecord
		if err := rows.Scan(&r.ID, &r.DynamicKeyID, &r.UpstreamKeyID, &r.ClientIP, &r.AccessedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan access record: %w", err)
		}
		records = append(records, r)
	}

	return records, total, rows.Err()
}
