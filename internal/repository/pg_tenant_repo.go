package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackfleet/logistics-core/internal/domain"
)

type PgTenantRepo struct {
	pool *pgxpool.Pool
}

func NewPgTenantRepo(pool *pgxpool.Pool) *PgTenantRepo {
	return &PgTenantRepo{pool: pool}
}

// ListActive returns every active company ordered by id.
func (r *PgTenantRepo) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, active, created_at
		FROM companies
		WHERE active = TRUE
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active companies: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

type PgDirectoryRepo struct {
	pool *pgxpool.Pool
}

func NewPgDirectoryRepo(pool *pgxpool.Pool) *PgDirectoryRepo {
	return &PgDirectoryRepo{pool: pool}
}

// User resolves a recipient's contact details.
func (r *PgDirectoryRepo) User(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, company_id, name, email, COALESCE(phone, ''), role
		FROM users WHERE id = $1`, id)

	var u domain.User
	err := row.Scan(&u.ID, &u.CompanyID, &u.Name, &u.Email, &u.Phone, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CompanyAdmins returns the admin users of a company, the recipients for
// company-level alerts.
func (r *PgDirectoryRepo) CompanyAdmins(ctx context.Context, companyID string) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, name, email, COALESCE(phone, ''), role
		FROM users
		WHERE company_id = $1 AND role = $2`, companyID, domain.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list company admins: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Name, &u.Email, &u.Phone, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
