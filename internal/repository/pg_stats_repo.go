package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackfleet/logistics-core/internal/domain"
)

type PgStatsRepo struct {
	pool *pgxpool.Pool
}

func NewPgStatsRepo(pool *pgxpool.Pool) *PgStatsRepo {
	return &PgStatsRepo{pool: pool}
}

// DashboardCounts aggregates the tenant's KPI bundle. Tenants with zero
// rows get empty maps, never an error.
func (r *PgStatsRepo) DashboardCounts(ctx context.Context, tenantID string) (*domain.DashboardSnapshot, error) {
	snap := &domain.DashboardSnapshot{
		TenantID:        tenantID,
		ShipmentsStatus: make(map[string]int),
		FleetStatus:     make(map[string]int),
		DriversStatus:   make(map[string]int),
	}

	if err := r.countByStatus(ctx, "shipments", tenantID, snap.ShipmentsStatus); err != nil {
		return nil, err
	}
	if err := r.countByStatus(ctx, "vehicles", tenantID, snap.FleetStatus); err != nil {
		return nil, err
	}
	if err := r.countByStatus(ctx, "drivers", tenantID, snap.DriversStatus); err != nil {
		return nil, err
	}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at::date = CURRENT_DATE),
			COUNT(*) FILTER (WHERE status = 'delivered' AND delivered_at::date = CURRENT_DATE)
		FROM shipments
		WHERE company_id = $1 AND deleted_at IS NULL`, tenantID).
		Scan(&snap.TodayShipments, &snap.TodayDeliveries)
	if err != nil {
		return nil, fmt.Errorf("count today shipments: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM invoices
		WHERE company_id = $1 AND status = $2 AND created_at::date = CURRENT_DATE`,
		tenantID, domain.InvoicePaid).Scan(&snap.TodayRevenue)
	if err != nil {
		return nil, fmt.Errorf("sum today revenue: %w", err)
	}

	return snap, nil
}

func (r *PgStatsRepo) countByStatus(ctx context.Context, table, tenantID string, dst map[string]int) error {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT status, COUNT(*)
		FROM %s
		WHERE company_id = $1 AND deleted_at IS NULL
		GROUP BY status`, table), tenantID)
	if err != nil {
		return fmt.Errorf("count %s by status: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		dst[status] = count
	}
	return rows.Err()
}

// InsertReport stores one generated analytics report.
func (r *PgStatsRepo) InsertReport(ctx context.Context, companyID, kind string, periodStart, periodEnd time.Time, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal report data: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO reports (company_id, kind, period_start, period_end, data, generated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())`,
		companyID, kind, periodStart, periodEnd, payload)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// LatestReport returns the newest report of the given kind, or
// domain.ErrNotFound when none exists.
func (r *PgStatsRepo) LatestReport(ctx context.Context, companyID, kind string) (map[string]any, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT data FROM reports
		WHERE company_id = $1 AND kind = $2
		ORDER BY generated_at DESC
		LIMIT 1`, companyID, kind).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest report: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("unmarshal report data: %w", err)
	}
	return data, nil
}
