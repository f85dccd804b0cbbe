package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// CleanupService purges old access records and deactivates expired dynamic
// keys on a daily schedule.
type CleanupService struct {
	pool     *pgxpool.Pool
	enabled  bool
	ttl      time.Duration
	interval time.Duration
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service. ttl is the retention
// window for access records.
func NewCleanupService(pool *pgxpool.Pool, enabled bool, ttl time.Duration) *CleanupService {
	return &CleanupService{
		pool:     pool,
		enabled:  enabled,
		ttl:      ttl,
		interval: 24 * time.Hour,
		done:     make(chan struct{}),
	}
}

// Start starts the cleanup service
func (cs *CleanupService) Start(ctx context.Context) {
	if !cs.enabled {
		log.Info().Msg("cleanup service is disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("cleanup service stopped")
				return
			case <-cs.done:
				log.Info().Msg("cleanup service stopped")
				return
			case <-ticker.C:
				cs.cleanup(ctx)
			}
		}
	}()

	log.Info().Dur("interval", cs.interval).Msg("cleanup service started")
}

// Stop stops the cleanup service. Safe to call even when the service never
// started (cleanup disabled).
func (cs *CleanupService) Stop() {
	close(cs.done)
}

// cleanup performs one pass
func (cs *CleanupService) cleanup(ctx context.Context) {
	if deleted, err := cs.DeleteOldAccessRecords(ctx); err != nil {
		log.Error().Err(err).Msg("cleanup: failed to delete old access records")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("cleanup: old access records removed")
	}

	if deactivated, err := cs.DeactivateExpiredKeys(ctx); err != nil {
		log.Error().Err(err).Msg("cleanup: failed to deactivate expired keys")
	} else if deactivated > 0 {
		log.Info().Int64("deactivated", deactivated).Msg("cleanup: expired dynamic keys deactivated")
	}
}

// DeleteOldAccessRecords removes access records older than the retention window
func (cs *CleanupService) DeleteOldAccessRecords(ctx context.Context) (int64, error) {
	result, err := cs.pool.Exec(ctx,
		"DELETE FROM access_records WHERE accessed_at < NOW() - make_interval(secs => $1)",
		cs.ttl.Seconds(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// DeactivateExpiredKeys flips is_active off for keys whose expiration passed.
// The rows are kept so the dashboard can still show them.
func (cs *CleanupService) DeactivateExpiredKeys(ctx context.Context) (int64, error) {
	result, err := cs.pool.Exec(ctx,
		"UPDATE dynamic_keys SET is_active = false WHERE expires_at IS NOT NULL AND expires_at < NOW() AND is_active = true",
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
