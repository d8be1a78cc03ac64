package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/dashboard"
	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

// aggregateTrackingMetrics rolls yesterday's raw tracking points into a
// per-vehicle daily summary collection.
func (d Deps) aggregateTrackingMetrics(ctx context.Context) error {
	day := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)

	pipeline := []map[string]any{
		{"$match": map[string]any{
			"recorded_at": map[string]any{"$gte": day, "$lt": next},
		}},
		{"$group": map[string]any{
			"_id":       map[string]any{"vehicle_id": "$vehicle_id", "company_id": "$company_id"},
			"points":    map[string]any{"$sum": 1},
			"avg_speed": map[string]any{"$avg": "$speed"},
			"max_speed": map[string]any{"$max": "$speed"},
		}},
	}

	groups, err := d.Docs.Aggregate(ctx, "tracking_points", pipeline)
	if err != nil {
		return fmt.Errorf("aggregate tracking points: %w", err)
	}
	if len(groups) == 0 {
		d.Logger.Info("no tracking points to aggregate", zap.Time("day", day))
		return nil
	}

	rollups := make([]store.Document, 0, len(groups))
	for _, g := range groups {
		g["day"] = day
		g["aggregated_at"] = time.Now().UTC()
		rollups = append(rollups, g)
	}
	if err := d.Docs.InsertMany(ctx, "tracking_metrics_daily", rollups); err != nil {
		return fmt.Errorf("store tracking rollups: %w", err)
	}

	d.Logger.Info("tracking metrics aggregated",
		zap.Time("day", day), zap.Int("vehicles", len(rollups)))
	return nil
}

// generateReports is the shared body for the daily, weekly, and monthly
// report jobs. The report payload is the dashboard KPI bundle of the
// moment; period bounds record what the report covers.
func (d Deps) generateReports(ctx context.Context, kind string, periodStart, periodEnd time.Time) error {
	return d.forEachTenant(ctx, "generate"+kind+"Reports", func(ctx context.Context, t domain.Tenant) error {
		snap, err := d.Stats.DashboardCounts(ctx, t.ID)
		if err != nil {
			return err
		}
		data := map[string]any{
			"shipments_by_status": snap.ShipmentsStatus,
			"fleet_by_status":     snap.FleetStatus,
			"drivers_by_status":   snap.DriversStatus,
			"today_shipments":     snap.TodayShipments,
			"today_deliveries":    snap.TodayDeliveries,
			"today_revenue":       snap.TodayRevenue,
		}
		if err := d.Stats.InsertReport(ctx, t.ID, kind, periodStart, periodEnd, data); err != nil {
			return err
		}

		d.notifyAdmins(ctx, t.ID, domain.Notification{
			Type:     domain.TypeReportReady,
			Title:    fmt.Sprintf("%s report ready", kind),
			Message:  fmt.Sprintf("Your %s report for the period ending %s is ready.", kind, periodEnd.Format("2006-01-02")),
			Data:     map[string]any{"kind": kind, "period_end": periodEnd},
			Channels: []domain.Channel{domain.ChannelInApp},
			Priority: domain.PriorityLow,
		})
		return nil
	})
}

func (d Deps) generateDailyReports(ctx context.Context) error {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	return d.generateReports(ctx, "daily", end.AddDate(0, 0, -1), end)
}

func (d Deps) generateWeeklyReports(ctx context.Context) error {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	return d.generateReports(ctx, "weekly", end.AddDate(0, 0, -7), end)
}

func (d Deps) generateMonthlyReports(ctx context.Context) error {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	return d.generateReports(ctx, "monthly", end.AddDate(0, -1, 0), end)
}

// cacheAnalyticsData refreshes every tenant's dashboard snapshot with the
// long TTL so on-connect reads stay warm.
func (d Deps) cacheAnalyticsData(ctx context.Context) error {
	return d.forEachTenant(ctx, "cacheAnalyticsData", func(ctx context.Context, t domain.Tenant) error {
		_, err := d.Dashboard.Refresh(ctx, t.ID, dashboard.SnapshotTTL)
		return err
	})
}

// sendDigestNotifications sends each user with unread notifications a
// morning summary. The digest itself is in-app plus email only.
func (d Deps) sendDigestNotifications(ctx context.Context) error {
	return d.forEachTenant(ctx, "sendDigestNotifications", func(ctx context.Context, t domain.Tenant) error {
		digests, err := d.Notifs.UnreadDigests(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, dg := range digests {
			d.notify(ctx, domain.Notification{
				RecipientID: dg.UserID,
				CompanyID:   dg.CompanyID,
				Type:        domain.TypeDailyDigest,
				Title:       "Your daily summary",
				Message:     fmt.Sprintf("You have %d unread notifications.", dg.Unread),
				Data:        map[string]any{"unread": dg.Unread},
				Channels:    []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
				Priority:    domain.PriorityLow,
			})
		}
		return nil
	})
}
