package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Notification retention: read notifications older than this are removed.
const notificationRetention = 90 * 24 * time.Hour

// Refresh tokens expire after 30 days.
const tokenMaxAge = 30 * 24 * time.Hour

// cleanupOldNotifications removes read notifications past retention.
// Unread notifications are kept regardless of age so no user loses an
// unseen message.
func (d Deps) cleanupOldNotifications(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-notificationRetention)
	deleted, err := d.Notifs.DeleteReadOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	d.Logger.Info("old notifications removed", zap.Int64("deleted", deleted))
	return nil
}

// cleanupStaleSessions drops sessions idle beyond the configured window.
func (d Deps) cleanupStaleSessions(ctx context.Context) error {
	deleted, err := d.Sessions.DeleteStaleSessions(ctx, d.Cfg.SessionMaxIdle)
	if err != nil {
		return err
	}
	if deleted > 0 {
		d.Logger.Info("stale sessions removed", zap.Int64("deleted", deleted))
	}
	return nil
}

// cleanupExpiredTokens drops aged and revoked refresh tokens.
func (d Deps) cleanupExpiredTokens(ctx context.Context) error {
	deleted, err := d.Sessions.DeleteExpiredTokens(ctx, tokenMaxAge)
	if err != nil {
		return err
	}
	if deleted > 0 {
		d.Logger.Info("expired tokens removed", zap.Int64("deleted", deleted))
	}
	return nil
}

// cleanupDatabase is the weekly deep clean: purge soft-deleted rows past
// retention and sweep document-store orphans whose owner row is gone.
func (d Deps) cleanupDatabase(ctx context.Context) error {
	purged, err := d.Sessions.PurgeSoftDeleted(ctx, d.Cfg.SoftDeleteRetention)
	if err != nil {
		return err
	}

	swept, err := d.Archiver.SweepOrphans(ctx, "shipment_documents", "shipment_id", "created_at", d.Owners)
	if err != nil {
		return err
	}

	d.Logger.Info("database cleanup complete",
		zap.Int64("purged", purged), zap.Int64("orphans_deleted", swept))
	return nil
}

// archiveOldTrackingData runs the batched copy-then-delete cycle over the
// time-series sources.
func (d Deps) archiveOldTrackingData(ctx context.Context) error {
	return d.Archiver.Run(ctx)
}

// rotateLogs archives month-old log files and purges the archive.
func (d Deps) rotateLogs(ctx context.Context) error {
	return d.Files.RotateLogs(ctx)
}

// cleanupTempFiles drops day-old scratch files.
func (d Deps) cleanupTempFiles(ctx context.Context) error {
	return d.Files.CleanupTempFiles(ctx)
}
