// Package jobs holds every scheduled job the platform runs and the wiring
// that registers them. Each handler is a thin orchestration over the store
// gateways: list work, act per tenant, send notifications. Handlers never
// bring down the scheduler; store outages are logged and returned as a
// failed run.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/archive"
	"github.com/trackfleet/logistics-core/internal/config"
	"github.com/trackfleet/logistics-core/internal/dashboard"
	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/health"
	"github.com/trackfleet/logistics-core/internal/scheduler"
	"github.com/trackfleet/logistics-core/internal/store"
	"github.com/trackfleet/logistics-core/internal/tenant"
)

// Expiry alert thresholds in days. At or below zero the entity is
// additionally deactivated.
const (
	ThresholdUrgent  = 7
	ThresholdWarning = 15
	ThresholdNotice  = 30
)

// Notifier accepts a notification for queued delivery.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// QueueRunner drains the pending notification queue.
type QueueRunner interface {
	ProcessPending(ctx context.Context) error
}

// NotificationStore is the relational surface the cleanup and digest jobs
// use.
type NotificationStore interface {
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	UnreadDigests(ctx context.Context, companyID string) ([]domain.UnreadDigest, error)
}

// BillingStore backs the invoice and payment jobs.
type BillingStore interface {
	DueRecurring(ctx context.Context, companyID string, now time.Time, limit int) ([]domain.RecurringInvoice, error)
	CreateInvoice(ctx context.Context, inv *domain.Invoice, fromRecurring string, nextRun time.Time) error
	DueWithin(ctx context.Context, companyID string, window time.Duration) ([]domain.Invoice, error)
	MarkOverdue(ctx context.Context, companyID string, now time.Time) ([]domain.Invoice, error)
	PendingTransactions(ctx context.Context, companyID, afterID string, limit int) ([]domain.PaymentTransaction, error)
	CompleteTransaction(ctx context.Context, txID string) error
	FailTransaction(ctx context.Context, txID string) error
}

// FleetStore backs the maintenance and expiry checks.
type FleetStore interface {
	VehiclesDueMaintenance(ctx context.Context, companyID string, window time.Duration) ([]domain.Vehicle, error)
	ExpiringLicenses(ctx context.Context, companyID string, cutoff time.Time) ([]domain.Driver, error)
	ExpiringDocuments(ctx context.Context, companyID string, cutoff time.Time) ([]domain.VehicleDocument, error)
	SetDriverStatus(ctx context.Context, driverID, status string) error
	SetVehicleStatus(ctx context.Context, vehicleID, status string) error
}

// Directory resolves recipients for company-level notifications.
type Directory interface {
	CompanyAdmins(ctx context.Context, companyID string) ([]domain.User, error)
}

// SessionStore backs session and token cleanup.
type SessionStore interface {
	DeleteStaleSessions(ctx context.Context, maxIdle time.Duration) (int64, error)
	DeleteExpiredTokens(ctx context.Context, maxAge time.Duration) (int64, error)
	PurgeSoftDeleted(ctx context.Context, retention time.Duration) (int64, error)
}

// StatsStore backs report generation.
type StatsStore interface {
	DashboardCounts(ctx context.Context, tenantID string) (*domain.DashboardSnapshot, error)
	InsertReport(ctx context.Context, companyID, kind string, periodStart, periodEnd time.Time, data map[string]any) error
}

// ExternalSyncer pushes platform state to a partner system. Feature-gated.
type ExternalSyncer interface {
	Sync(ctx context.Context, companyID string) error
}

// MLClient fetches arrival predictions from the ML service. Feature-gated.
type MLClient interface {
	PredictETAs(ctx context.Context, companyID string) (map[string]time.Time, error)
}

// PaymentGateway reports the authoritative state of a payment attempt.
type PaymentGateway interface {
	Status(ctx context.Context, gatewayRef string) (string, error)
}

// Deps carries everything the job set needs. Optional fields (Gateway,
// Syncer, ML) may be nil; the jobs that need them are gated or degrade.
type Deps struct {
	Logger *zap.Logger
	Cfg    *config.Config

	Tenants   *tenant.Iterator
	Notifier  Notifier
	Queue     QueueRunner
	Notifs    NotificationStore
	Billing   BillingStore
	Fleet     FleetStore
	Directory Directory
	Sessions  SessionStore
	Stats     StatsStore
	Docs      store.DocumentStore
	Cache     store.Cache
	Dashboard *dashboard.Projection
	Archiver  *archive.Archiver
	Owners    archive.OwnerChecker
	Files     *archive.FileRotator
	Health    *health.Monitor
	Gateway   PaymentGateway
	Syncer    ExternalSyncer
	ML        MLClient
}

// RegisterAll registers the full job set. Registration failures abort: a
// misconfigured schedule is a deploy-time bug, not a runtime condition.
func (d Deps) RegisterAll(reg *scheduler.Registry) error {
	tz := d.Cfg.Timezone

	descriptors := []scheduler.JobDescriptor{
		scheduler.NewJob("processRecurringInvoices", "0 1 * * *").
			Timezone(tz).Handler(d.processRecurringInvoices).Build(),
		scheduler.NewJob("sendPaymentReminders", "0 9 * * *").
			Timezone(tz).Handler(d.sendPaymentReminders).Build(),
		scheduler.NewJob("updateOverdueStatus", "0 0 * * *").
			Timezone(tz).Handler(d.updateOverdueStatus).Build(),
		scheduler.NewJob("processNotificationQueue", "*/5 * * * *").
			Timezone(tz).Handler(d.processNotificationQueue).
			Timeout(4 * time.Minute).Build(),
		scheduler.NewJob("cleanupOldNotifications", "0 2 * * *").
			Timezone(tz).Handler(d.cleanupOldNotifications).Build(),
		scheduler.NewJob("sendDigestNotifications", "0 8 * * *").
			Timezone(tz).Handler(d.sendDigestNotifications).Build(),
		scheduler.NewJob("archiveOldTrackingData", "0 3 * * 0").
			Timezone(tz).Handler(d.archiveOldTrackingData).
			Timeout(30 * time.Minute).Build(),
		scheduler.NewJob("cleanupStaleSessions", "*/30 * * * *").
			Timezone(tz).Handler(d.cleanupStaleSessions).Build(),
		scheduler.NewJob("aggregateTrackingMetrics", "0 4 * * *").
			Timezone(tz).Handler(d.aggregateTrackingMetrics).
			Timeout(15 * time.Minute).Build(),
		scheduler.NewJob("generateDailyReports", "0 5 * * *").
			Timezone(tz).Handler(d.generateDailyReports).Build(),
		scheduler.NewJob("generateWeeklyReports", "0 6 * * 1").
			Timezone(tz).Handler(d.generateWeeklyReports).Build(),
		scheduler.NewJob("generateMonthlyReports", "0 7 1 * *").
			Timezone(tz).Handler(d.generateMonthlyReports).Build(),
		scheduler.NewJob("cacheAnalyticsData", "*/15 * * * *").
			Timezone(tz).Handler(d.cacheAnalyticsData).Build(),
		scheduler.NewJob("checkVehicleMaintenance", "0 8 * * *").
			Timezone(tz).Handler(d.checkVehicleMaintenance).Build(),
		scheduler.NewJob("checkLicenseExpiry", "0 9 * * *").
			Timezone(tz).Handler(d.checkLicenseExpiry).Build(),
		scheduler.NewJob("checkDocumentExpiry", "0 10 * * *").
			Timezone(tz).Handler(d.checkDocumentExpiry).Build(),
		scheduler.NewJob("cleanupDatabase", "0 2 * * 0").
			Timezone(tz).Handler(d.cleanupDatabase).
			Timeout(30 * time.Minute).Build(),
		scheduler.NewJob("rotateLogs", "0 3 1 * *").
			Timezone(tz).Handler(d.rotateLogs).Build(),
		scheduler.NewJob("cleanupTempFiles", "0 4 * * *").
			Timezone(tz).Handler(d.cleanupTempFiles).Build(),
		scheduler.NewJob("cleanupExpiredTokens", "0 1 * * *").
			Timezone(tz).Handler(d.cleanupExpiredTokens).Build(),
		scheduler.NewJob("syncExternalSystems", "*/30 * * * *").
			Timezone(tz).Handler(d.syncExternalSystems).
			EnabledIf(func() bool { return d.Cfg.ExternalSyncEnabled && d.Syncer != nil }).Build(),
		scheduler.NewJob("reconcilePayments", "0 6 * * *").
			Timezone(tz).Handler(d.reconcilePayments).Build(),
		scheduler.NewJob("syncMLPredictions", "0 */4 * * *").
			Timezone(tz).Handler(d.syncMLPredictions).
			EnabledIf(func() bool { return d.Cfg.MLServiceURL != "" && d.ML != nil }).Build(),
		scheduler.NewJob("healthCheck", "*/10 * * * *").
			Timezone(tz).Handler(d.healthCheck).
			Timeout(time.Minute).Build(),
	}

	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

// forEachTenant is the shared per-tenant loop: failures are isolated per
// tenant and summarised in one log line.
func (d Deps) forEachTenant(ctx context.Context, job string, work tenant.Work) error {
	return d.runTenants(ctx, job, work, tenant.NewOptions())
}

// forEachTenantBatched additionally hands the handler the sub-batch size
// it pages per-tenant rows with, so one tenant's backlog cannot pin a
// whole cycle on a single unbounded query.
func (d Deps) forEachTenantBatched(ctx context.Context, job string, work func(ctx context.Context, t domain.Tenant, batch int) error) error {
	opts := tenant.NewOptions()
	return d.runTenants(ctx, job, func(ctx context.Context, t domain.Tenant) error {
		return work(ctx, t, opts.Batch())
	}, opts)
}

func (d Deps) runTenants(ctx context.Context, job string, work tenant.Work, opts tenant.Options) error {
	res, err := d.Tenants.ForEach(ctx, work, opts)
	if err != nil {
		return err
	}
	if failed := res.Failed(); len(failed) > 0 {
		for _, f := range failed {
			d.Logger.Warn("tenant work failed",
				zap.String("job", job),
				zap.String("company_id", f.Tenant.ID),
				zap.Error(f.Err))
		}
	}
	return nil
}

// processNotificationQueue drains the Redis queue through the dispatcher.
func (d Deps) processNotificationQueue(ctx context.Context) error {
	return d.Queue.ProcessPending(ctx)
}

// healthCheck probes every backing store and records the snapshot.
func (d Deps) healthCheck(ctx context.Context) error {
	return d.Health.Run(ctx)
}
