package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgSessionRepo struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepo(pool *pgxpool.Pool) *PgSessionRepo {
	return &PgSessionRepo{pool: pool}
}

// DeleteStaleSessions removes sessions idle beyond maxIdle.
func (r *PgSessionRepo) DeleteStaleSessions(ctx context.Context, maxIdle time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE last_seen_at < $1`, time.Now().Add(-maxIdle))
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredTokens removes refresh tokens older than maxAge along with
// tokens already revoked.
func (r *PgSessionRepo) DeleteExpiredTokens(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE created_at < $1 OR revoked_at IS NOT NULL`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeSoftDeleted hard-deletes rows soft-deleted longer ago than the
// retention window, children before parents.
func (r *PgSessionRepo) PurgeSoftDeleted(ctx context.Context, retention time.Duration) (int64, error) {
	var total int64
	cutoff := time.Now().Add(-retention)
	// Order matters for FK integrity.
	for _, table := range []string{"shipments", "vehicle_documents", "drivers", "vehicles"} {
		tag, err := r.pool.Exec(ctx, fmt.Sprintf(`
			DELETE FROM %s
			WHERE deleted_at IS NOT NULL AND deleted_at < $1`, table), cutoff)
		if err != nil {
			return total, fmt.Errorf("purge soft-deleted %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
