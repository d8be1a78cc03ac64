package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackfleet/logistics-core/internal/domain"
)

type PgBillingRepo struct {
	pool *pgxpool.Pool
}

func NewPgBillingRepo(pool *pgxpool.Pool) *PgBillingRepo {
	return &PgBillingRepo{pool: pool}
}

// DueRecurring returns the company's active recurring invoices whose next
// run is at or before now.
func (r *PgBillingRepo) DueRecurring(ctx context.Context, companyID string, now time.Time, limit int) ([]domain.RecurringInvoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, customer_id, amount, currency, interval_days, next_run_at, active
		FROM recurring_invoices
		WHERE company_id = $1 AND active = TRUE AND next_run_at <= $2
		ORDER BY next_run_at
		LIMIT $3`, companyID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due recurring invoices: %w", err)
	}
	defer rows.Close()

	var out []domain.RecurringInvoice
	for rows.Next() {
		var ri domain.RecurringInvoice
		if err := rows.Scan(&ri.ID, &ri.CompanyID, &ri.CustomerID, &ri.Amount, &ri.Currency,
			&ri.IntervalDays, &ri.NextRunAt, &ri.Active); err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// CreateInvoice issues an invoice and advances the recurring template in
// one transaction, so a crash cannot double-bill the next cycle.
func (r *PgBillingRepo) CreateInvoice(ctx context.Context, inv *domain.Invoice, fromRecurring string, nextRun time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO invoices
			(id, company_id, customer_id, number, amount, currency, status, due_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		inv.ID, inv.CompanyID, inv.CustomerID, inv.Number, inv.Amount, inv.Currency,
		inv.Status, inv.DueDate, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	if fromRecurring != "" {
		_, err = tx.Exec(ctx, `
			UPDATE recurring_invoices SET next_run_at = $1 WHERE id = $2`,
			nextRun, fromRecurring)
		if err != nil {
			return fmt.Errorf("advance recurring invoice: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// DueWithin returns unpaid invoices of the company due within the window.
func (r *PgBillingRepo) DueWithin(ctx context.Context, companyID string, window time.Duration) ([]domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, customer_id, number, amount, currency, status, due_date, created_at
		FROM invoices
		WHERE company_id = $1 AND status = $2
		  AND due_date BETWEEN NOW() AND $3
		ORDER BY due_date`, companyID, domain.InvoicePending, time.Now().Add(window))
	if err != nil {
		return nil, fmt.Errorf("list due invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

// MarkOverdue flips pending invoices past their due date to overdue and
// returns them so reminders can be sent.
func (r *PgBillingRepo) MarkOverdue(ctx context.Context, companyID string, now time.Time) ([]domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE invoices
		SET status = $1
		WHERE company_id = $2 AND status = $3 AND due_date < $4
		RETURNING id, company_id, customer_id, number, amount, currency, status, due_date, created_at`,
		domain.InvoiceOverdue, companyID, domain.InvoicePending, now)
	if err != nil {
		return nil, fmt.Errorf("mark invoices overdue: %w", err)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

// PendingTransactions returns one keyset page of gateway payments still
// awaiting an outcome. Transactions that stay pending across a cycle would
// reappear under a plain re-query, so pages advance past afterID instead.
func (r *PgBillingRepo) PendingTransactions(ctx context.Context, companyID, afterID string, limit int) ([]domain.PaymentTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, company_id, amount, status, gateway_ref, created_at, updated_at
		FROM payment_transactions
		WHERE company_id = $1 AND status = $2 AND id::text > $3
		ORDER BY id::text
		LIMIT $4`, companyID, domain.PaymentPending, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentTransaction
	for rows.Next() {
		var tx domain.PaymentTransaction
		if err := rows.Scan(&tx.ID, &tx.InvoiceID, &tx.CompanyID, &tx.Amount, &tx.Status,
			&tx.GatewayRef, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// CompleteTransaction settles the payment and marks its invoice paid.
func (r *PgBillingRepo) CompleteTransaction(ctx context.Context, txID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var invoiceID string
	err = tx.QueryRow(ctx, `
		UPDATE payment_transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING invoice_id`, domain.PaymentCompleted, txID).Scan(&invoiceID)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices SET status = $1 WHERE id = $2`, domain.InvoicePaid, invoiceID)
	if err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	return tx.Commit(ctx)
}

// FailTransaction records a terminal gateway failure.
func (r *PgBillingRepo) FailTransaction(ctx context.Context, txID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payment_transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2`, domain.PaymentFailed, txID)
	if err != nil {
		return fmt.Errorf("fail transaction: %w", err)
	}
	return nil
}

func scanInvoices(rows pgx.Rows) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.Number, &inv.Amount,
			&inv.Currency, &inv.Status, &inv.DueDate, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
