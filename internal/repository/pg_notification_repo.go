// Package repository holds the pgx-backed store gateways. Each repo
// satisfies the consumer-side interfaces declared where they are used
// (dispatch, tenant, jobs, dashboard).
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackfleet/logistics-core/internal/domain"
)

type PgNotificationRepo struct {
	pool *pgxpool.Pool
}

func NewPgNotificationRepo(pool *pgxpool.Pool) *PgNotificationRepo {
	return &PgNotificationRepo{pool: pool}
}

// Insert persists the in-app copy of a notification.
func (r *PgNotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	channels := make([]string, len(n.Channels))
	for i, c := range n.Channels {
		channels[i] = string(c)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, recipient_id, company_id, type, title, message, data, channels, priority, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.RecipientID, n.CompanyID, n.Type, n.Title, n.Message,
		data, channels, n.Priority, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// DeleteReadOlderThan removes read notifications created before cutoff.
// Unread notifications are retained regardless of age.
func (r *PgNotificationRepo) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE read_at IS NOT NULL AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UnreadDigests returns users of the company with at least one unread
// notification older than an hour, so just-delivered items do not trigger
// a digest.
func (r *PgNotificationRepo) UnreadDigests(ctx context.Context, companyID string) ([]domain.UnreadDigest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT recipient_id, company_id, COUNT(*)
		FROM notifications
		WHERE company_id = $1
		  AND read_at IS NULL
		  AND created_at < NOW() - INTERVAL '1 hour'
		GROUP BY recipient_id, company_id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query unread digests: %w", err)
	}
	defer rows.Close()

	var out []domain.UnreadDigest
	for rows.Next() {
		var d domain.UnreadDigest
		if err := rows.Scan(&d.UserID, &d.CompanyID, &d.Unread); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
