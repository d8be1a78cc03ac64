package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackfleet/logistics-core/internal/domain"
)

type PgFleetRepo struct {
	pool *pgxpool.Pool
}

func NewPgFleetRepo(pool *pgxpool.Pool) *PgFleetRepo {
	return &PgFleetRepo{pool: pool}
}

// VehiclesDueMaintenance returns active vehicles whose next maintenance
// falls within the window.
func (r *PgFleetRepo) VehiclesDueMaintenance(ctx context.Context, companyID string, window time.Duration) ([]domain.Vehicle, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, plate, status, next_maintenance_at
		FROM vehicles
		WHERE company_id = $1 AND status = $2
		  AND next_maintenance_at <= $3
		ORDER BY next_maintenance_at`, companyID, domain.StatusActive, time.Now().Add(window))
	if err != nil {
		return nil, fmt.Errorf("list vehicles due maintenance: %w", err)
	}
	defer rows.Close()

	var out []domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.CompanyID, &v.Plate, &v.Status, &v.NextMaintenanceAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ExpiringLicenses returns active drivers whose license expires before
// cutoff, including already-expired ones.
func (r *PgFleetRepo) ExpiringLicenses(ctx context.Context, companyID string, cutoff time.Time) ([]domain.Driver, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, user_id, name, status, license_expiry
		FROM drivers
		WHERE company_id = $1 AND status = $2 AND license_expiry <= $3
		ORDER BY license_expiry`, companyID, domain.StatusActive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expiring licenses: %w", err)
	}
	defer rows.Close()

	var out []domain.Driver
	for rows.Next() {
		var d domain.Driver
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.UserID, &d.Name, &d.Status, &d.LicenseExpiry); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExpiringDocuments returns vehicle documents expiring before cutoff for
// vehicles that are still active.
func (r *PgFleetRepo) ExpiringDocuments(ctx context.Context, companyID string, cutoff time.Time) ([]domain.VehicleDocument, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.company_id, d.vehicle_id, d.kind, d.mandatory, d.expires_at
		FROM vehicle_documents d
		JOIN vehicles v ON v.id = d.vehicle_id
		WHERE d.company_id = $1 AND v.status = $2 AND d.expires_at <= $3
		ORDER BY d.expires_at`, companyID, domain.StatusActive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expiring documents: %w", err)
	}
	defer rows.Close()

	var out []domain.VehicleDocument
	for rows.Next() {
		var d domain.VehicleDocument
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.VehicleID, &d.Kind, &d.Mandatory, &d.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDriverStatus flips a driver between active and inactive.
func (r *PgFleetRepo) SetDriverStatus(ctx context.Context, driverID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE drivers SET status = $1 WHERE id = $2`, status, driverID)
	if err != nil {
		return fmt.Errorf("set driver status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetVehicleStatus flips a vehicle between active and inactive.
func (r *PgFleetRepo) SetVehicleStatus(ctx context.Context, vehicleID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE vehicles SET status = $1 WHERE id = $2`, status, vehicleID)
	if err != nil {
		return fmt.Errorf("set vehicle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// VehicleCompany resolves the owning company for realtime room
// authorization.
func (r *PgFleetRepo) VehicleCompany(ctx context.Context, vehicleID string) (string, error) {
	var companyID string
	err := r.pool.QueryRow(ctx, `
		SELECT company_id FROM vehicles WHERE id = $1`, vehicleID).Scan(&companyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve vehicle company: %w", err)
	}
	return companyID, nil
}

// ShipmentExists backs the document orphan sweep.
func (r *PgFleetRepo) ShipmentExists(ctx context.Context, shipmentID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM shipments WHERE id = $1)`, shipmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check shipment exists: %w", err)
	}
	return exists, nil
}

// Exists satisfies the archive orphan checker for shipment-owned
// documents.
func (r *PgFleetRepo) Exists(ctx context.Context, ownerID string) (bool, error) {
	return r.ShipmentExists(ctx, ownerID)
}
