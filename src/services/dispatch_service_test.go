package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keyroute/keyroute-server/src/database"
	"github.com/keyroute/keyroute-server/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testUUID returns a fixed UUID whose string ordering follows n
func testUUID(n byte) uuid.UUID {
	var b [16]byte
	b[15] = n
	return uuid.UUID(b)
}

func testMember(keyN, serverN byte, keyActive, serverActive bool) models.Member {
	return models.Member{
		KeyID:        testUUID(keyN),
		ServerID:     testUUID(serverN),
		ServerName:   "server",
		Hostname:     "node.example.com",
		Port:         443,
		Cipher:       "chacha20-ietf-poly1305",
		Secret:       "secret",
		KeyActive:    keyActive,
		ServerActive: serverActive,
	}
}

func TestSelectMember_NoMembers(t *testing.T) {
	_, err := SelectMember(models.AlgorithmRandomKey, nil, "1.2.3.4", func(n int) int { return 0 })
	require.ErrorIs(t, err, ErrNoEligibleMembers)
}

func TestSelectMember_AllIneligible(t *testing.T) {
	members := []models.Member{
		testMember(1, 10, false, true),  // key disabled
		testMember(2, 10, true, false),  // server disabled
		testMember(3, 11, false, false), // both disabled
	}
	_, err := SelectMember(models.AlgorithmRandomKey, members, "1.2.3.4", func(n int) int { return 0 })
	require.ErrorIs(t, err, ErrNoEligibleMembers)
}

func TestSelectMember_RandomKey_SkipsIneligible(t *testing.T) {
	members := []models.Member{
		testMember(1, 10, true, true),
		testMember(2, 10, false, true), // excluded
		testMember(3, 11, true, true),
	}

	selected, err := SelectMember(models.AlgorithmRandomKey, members, "1.2.3.4", func(n int) int {
		// Only the two eligible members are candidates
		require.Equal(t, 2, n)
		return 1
	})
	require.NoError(t, err)
	assert.Equal(t, testUUID(3), selected.KeyID)
}

func TestSelectMember_RandomServerKey_TwoStage(t *testing.T) {
	// Server 10 has two keys, server 11 has one. Picking the server first
	// means server 11 gets half the traffic despite having fewer keys.
	members := []models.Member{
		testMember(1, 10, true, true),
		testMember(2, 10, true, true),
		testMember(3, 11, true, true),
	}

	// First draw picks the server (sorted: 10, 11), second picks its key
	draws := []int{1, 0}
	i := 0
	intn := func(n int) int {
		v := draws[i]
		i++
		return v
	}

	selected, err := SelectMember(models.AlgorithmRandomServerKey, members, "1.2.3.4", intn)
	require.NoError(t, err)
	assert.Equal(t, testUUID(3), selected.KeyID)
	assert.Equal(t, 2, i, "expected exactly two draws")
}

func TestSelectMember_RandomServerKey_SingleServer(t *testing.T) {
	members := []models.Member{
		testMember(1, 10, true, true),
		testMember(2, 10, true, true),
	}

	draws := []int{0, 1}
	i := 0
	intn := func(n int) int {
		v := draws[i]
		i++
		return v
	}

	selected, err := SelectMember(models.AlgorithmRandomServerKey, members, "1.2.3.4", intn)
	require.NoError(t, err)
	assert.Equal(t, testUUID(2), selected.KeyID)
}

func TestSelectMember_ClientIPHash_StableAcrossOrdering(t *testing.T) {
	a := testMember(1, 10, true, true)
	b := testMember(2, 10, true, true)
	c := testMember(3, 11, true, true)

	intn := func(n int) int {
		t.Fatal("client_ip_hash must not draw randomness")
		return 0
	}

	first, err := SelectMember(models.AlgorithmClientIPHash, []models.Member{a, b, c}, "203.0.113.7", intn)
	require.NoError(t, err)

	// Same client, different query order: affinity must hold
	second, err := SelectMember(models.AlgorithmClientIPHash, []models.Member{c, a, b}, "203.0.113.7", intn)
	require.NoError(t, err)
	assert.Equal(t, first.KeyID, second.KeyID)
}

func TestSelectMember_ClientIPHash_IgnoresIneligible(t *testing.T) {
	members := []models.Member{
		testMember(1, 10, false, true),
		testMember(2, 10, true, true),
	}

	selected, err := SelectMember(models.AlgorithmClientIPHash, members, "10.0.0.1", func(n int) int { return 0 })
	require.NoError(t, err)
	assert.Equal(t, testUUID(2), selected.KeyID)
}

func TestSelectMember_UnknownAlgorithm(t *testing.T) {
	members := []models.Member{testMember(1, 10, true, true)}
	_, err := SelectMember(models.Algorithm("round_robin"), members, "1.2.3.4", func(n int) int { return 0 })
	require.ErrorIs(t, err, ErrInvalidAlgorithm)
}

// resolveFixture creates a dynamic key with one active member and returns
// the dynamic key ID and its path
func resolveFixture(t *testing.T, tdb *database.TestDB, algorithm string) (uuid.UUID, string) {
	t.Helper()

	serverID, err := tdb.CreateTestServer("node-1", "node1.example.com")
	require.NoError(t, err)

	keyID, err := tdb.CreateTestUpstreamKey(serverID, "key-1", "upstream-secret", 8388)
	require.NoError(t, err)

	path := "test-" + uuid.New().String()[:8]
	dkID, err := tdb.CreateTestDynamicKey("Test Key", path, algorithm)
	require.NoError(t, err)

	require.NoError(t, tdb.AddTestMember(dkID, keyID))
	return dkID, path
}

func newTestDispatchService(tdb *database.TestDB) *DispatchService {
	ks := NewKeyService(tdb.Pool)
	fs := NewFleetService(tdb.Pool, nil)
	return NewDispatchService(tdb.Pool, ks, fs)
}

func TestResolve_UnknownPath(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		ds := newTestDispatchService(tdb)
		_, err := ds.Resolve(context.Background(), "no-such-path", "1.2.3.4")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestResolve_InactiveKey(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		dkID, path := resolveFixture(t, tdb, "random_key")
		_, err := tdb.Pool.Exec(context.Background(), "UPDATE dynamic_keys SET is_active = false WHERE id = $1", dkID)
		require.NoError(t, err)

		ds := newTestDispatchService(tdb)
		_, err = ds.Resolve(context.Background(), path, "1.2.3.4")
		require.ErrorIs(t, err, ErrKeyInactive)
	})
}

func TestResolve_ExpiredKey(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		dkID, path := resolveFixture(t, tdb, "random_key")
		_, err := tdb.Pool.Exec(context.Background(),
			"UPDATE dynamic_keys SET expires_at = $1 WHERE id = $2", time.Now().Add(-time.Hour), dkID)
		require.NoError(t, err)

		ds := newTestDispatchService(tdb)
		_, err = ds.Resolve(context.Background(), path, "1.2.3.4")
		require.ErrorIs(t, err, ErrKeyExpired)
	})
}

func TestResolve_NoMembers(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		path := "empty-" + uuid.New().String()[:8]
		_, err := tdb.CreateTestDynamicKey("Empty Key", path, "random_key")
		require.NoError(t, err)

		ds := newTestDispatchService(tdb)
		_, err = ds.Resolve(context.Background(), path, "1.2.3.4")
		require.ErrorIs(t, err, ErrNoEligibleMembers)
	})
}

func TestResolve_Success(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		dkID, path := resolveFixture(t, tdb, "random_key")

		ds := newTestDispatchService(tdb)
		result, err := ds.Resolve(context.Background(), path, "203.0.113.7")
		require.NoError(t, err)

		assert.Equal(t, "node1.example.com", result.Member.Hostname)
		assert.Equal(t, 8388, result.Member.Port)
		assert.Equal(t, "upstream-secret", result.Member.Secret)
		assert.Nil(t, result.Prefix)

		// Usage stats and access record are written on success
		var count int
		err = tdb.Pool.QueryRow(context.Background(),
			"SELECT connection_count FROM dynamic_keys WHERE id = $1", dkID).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		var records int
		err = tdb.Pool.QueryRow(context.Background(),
			"SELECT COUNT(*) FROM access_records WHERE dynamic_key_id = $1", dkID).Scan(&records)
		require.NoError(t, err)
		assert.Equal(t, 1, records)
	})
}

func TestResolve_IncludesPrefix(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		dkID, path := resolveFixture(t, tdb, "random_key")
		_, err := tdb.Pool.Exec(context.Background(),
			"UPDATE dynamic_keys SET prefix = 'tls' WHERE id = $1", dkID)
		require.NoError(t, err)

		ds := newTestDispatchService(tdb)
		result, err := ds.Resolve(context.Background(), path, "203.0.113.7")
		require.NoError(t, err)
		require.NotNil(t, result.Prefix)
		assert.Equal(t, models.PrefixTLS, result.Prefix.Type)
		assert.Equal(t, []int{443}, result.Prefix.RecommendedPorts)
	})
}

func TestGetAccessRecords_Pagination(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		dkID, path := resolveFixture(t, tdb, "random_key")
		_ = dkID

		ds := newTestDispatchService(tdb)
		for i := 0; i < 3; i++ {
			_, err := ds.Resolve(context.Background(), path, "203.0.113.7")
			require.NoError(t, err)
		}

		records, total, err := ds.GetAccessRecords(context.Background(), 2, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, records, 2)

		rest, _, err := ds.GetAccessRecords(context.Background(), 2, 2)
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})
}

func TestNewDispatchService_DefaultRand(t *testing.T) {
	ds := NewDispatchService(nil, nil, nil)
	if ds.intn == nil {
		t.Fatal("expected default rand source")
	}
	v := ds.intn(1)
	if v != 0 {
		t.Fatalf("intn(1) must return 0, got %d", v)
	}
}

func TestSelectMember_ErrorsAreSentinel(t *testing.T) {
	_, err := SelectMember(models.AlgorithmRandomKey, nil, "", func(n int) int { return 0 })
	if !errors.Is(err, ErrNoEligibleMembers) {
		t.Fatalf("expected ErrNoEligibleMembers, got %v", err)
	}
}
