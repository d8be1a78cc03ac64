package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// paymentReminderWindow is how far ahead of the due date reminders go out.
const paymentReminderWindow = 3 * 24 * time.Hour

// reconcileGiveUp is how long a transaction may sit pending before the
// reconciler declares it failed without a gateway verdict.
const reconcileGiveUp = 7 * 24 * time.Hour

// processRecurringInvoices issues an invoice for every due recurring
// template and advances the template's next run in the same transaction.
func (d Deps) processRecurringInvoices(ctx context.Context) error {
	now := time.Now().UTC()
	return d.forEachTenantBatched(ctx, "processRecurringInvoices", func(ctx context.Context, t domain.Tenant, batch int) error {
		issued := 0
		// Issuing advances next_run_at past now, so each fetch sees only
		// templates the previous page has not handled.
		for {
			due, err := d.Billing.DueRecurring(ctx, t.ID, now, batch)
			if err != nil {
				return err
			}
			for _, ri := range due {
				inv := &domain.Invoice{
					ID:         uuid.NewString(),
					CompanyID:  ri.CompanyID,
					CustomerID: ri.CustomerID,
					Number:     invoiceNumber(now),
					Amount:     ri.Amount,
					Currency:   ri.Currency,
					Status:     domain.InvoicePending,
					DueDate:    now.AddDate(0, 0, ri.IntervalDays),
					CreatedAt:  now,
				}
				nextRun := ri.NextRunAt.AddDate(0, 0, ri.IntervalDays)
				if err := d.Billing.CreateInvoice(ctx, inv, ri.ID, nextRun); err != nil {
					return err
				}

				d.notifyAdmins(ctx, t.ID, domain.Notification{
					Type:     domain.TypeInvoiceGenerated,
					Title:    "Invoice generated",
					Message:  fmt.Sprintf("Invoice %s for %.2f %s was generated.", inv.Number, inv.Amount, inv.Currency),
					Data:     map[string]any{"invoice_id": inv.ID, "amount": inv.Amount},
					Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
					Priority: domain.PriorityNormal,
				})
			}
			issued += len(due)
			if len(due) < batch {
				break
			}
		}
		if issued > 0 {
			d.Logger.Info("recurring invoices processed",
				zap.String("company_id", t.ID), zap.Int("issued", issued))
		}
		return nil
	})
}

// sendPaymentReminders nudges admins about invoices due inside the
// reminder window.
func (d Deps) sendPaymentReminders(ctx context.Context) error {
	return d.forEachTenant(ctx, "sendPaymentReminders", func(ctx context.Context, t domain.Tenant) error {
		due, err := d.Billing.DueWithin(ctx, t.ID, paymentReminderWindow)
		if err != nil {
			return err
		}
		for _, inv := range due {
			d.notifyAdmins(ctx, t.ID, domain.Notification{
				Type:  domain.TypePaymentReminder,
				Title: "Payment due soon",
				Message: fmt.Sprintf("Invoice %s (%.2f %s) is due on %s.",
					inv.Number, inv.Amount, inv.Currency, inv.DueDate.Format("2006-01-02")),
				Data:     map[string]any{"invoice_id": inv.ID, "due_date": inv.DueDate},
				Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
				Priority: domain.PriorityHigh,
			})
		}
		return nil
	})
}

// updateOverdueStatus flips pending invoices past due to overdue and
// raises an urgent notification per invoice.
func (d Deps) updateOverdueStatus(ctx context.Context) error {
	now := time.Now().UTC()
	return d.forEachTenant(ctx, "updateOverdueStatus", func(ctx context.Context, t domain.Tenant) error {
		flipped, err := d.Billing.MarkOverdue(ctx, t.ID, now)
		if err != nil {
			return err
		}
		for _, inv := range flipped {
			d.notifyAdmins(ctx, t.ID, domain.Notification{
				Type:  domain.TypePaymentOverdue,
				Title: "Invoice overdue",
				Message: fmt.Sprintf("Invoice %s (%.2f %s) is overdue since %s.",
					inv.Number, inv.Amount, inv.Currency, inv.DueDate.Format("2006-01-02")),
				Data:     map[string]any{"invoice_id": inv.ID},
				Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail, domain.ChannelSMS},
				Priority: domain.PriorityUrgent,
			})
		}
		if len(flipped) > 0 {
			d.Logger.Info("invoices marked overdue",
				zap.String("company_id", t.ID), zap.Int("count", len(flipped)))
		}
		return nil
	})
}

// reconcilePayments settles pending gateway transactions. The gateway is
// authoritative when reachable; a transaction pending beyond seven days
// with no verdict is marked failed so it stops polling forever.
func (d Deps) reconcilePayments(ctx context.Context) error {
	now := time.Now().UTC()
	return d.forEachTenantBatched(ctx, "reconcilePayments", func(ctx context.Context, t domain.Tenant, batch int) error {
		afterID := ""
		for {
			pending, err := d.Billing.PendingTransactions(ctx, t.ID, afterID, batch)
			if err != nil {
				return err
			}
			if err := d.settlePending(ctx, t.ID, pending, now); err != nil {
				return err
			}
			if len(pending) < batch {
				return nil
			}
			afterID = pending[len(pending)-1].ID
		}
	})
}

func (d Deps) settlePending(ctx context.Context, companyID string, pending []domain.PaymentTransaction, now time.Time) error {
	for _, tx := range pending {
		verdict := domain.PaymentPending
		if d.Gateway != nil {
			v, err := d.Gateway.Status(ctx, tx.GatewayRef)
			if err != nil {
				d.Logger.Warn("gateway status lookup failed",
					zap.String("transaction_id", tx.ID), zap.Error(err))
			} else {
				verdict = v
			}
		}

		switch verdict {
		case domain.PaymentCompleted:
			if err := d.Billing.CompleteTransaction(ctx, tx.ID); err != nil {
				return err
			}
			d.notifyAdmins(ctx, companyID, domain.Notification{
				Type:     domain.TypePaymentReceived,
				Title:    "Payment received",
				Message:  fmt.Sprintf("Payment of %.2f for invoice %s was confirmed.", tx.Amount, tx.InvoiceID),
				Data:     map[string]any{"transaction_id": tx.ID, "invoice_id": tx.InvoiceID},
				Channels: []domain.Channel{domain.ChannelInApp},
				Priority: domain.PriorityNormal,
			})
		case domain.PaymentFailed:
			if err := d.failTransaction(ctx, companyID, tx); err != nil {
				return err
			}
		default:
			if now.Sub(tx.CreatedAt) >= reconcileGiveUp {
				if err := d.failTransaction(ctx, companyID, tx); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (d Deps) failTransaction(ctx context.Context, companyID string, tx domain.PaymentTransaction) error {
	if err := d.Billing.FailTransaction(ctx, tx.ID); err != nil {
		return err
	}
	d.notifyAdmins(ctx, companyID, domain.Notification{
		Type:     domain.TypePaymentFailed,
		Title:    "Payment failed",
		Message:  fmt.Sprintf("Payment of %.2f for invoice %s failed.", tx.Amount, tx.InvoiceID),
		Data:     map[string]any{"transaction_id": tx.ID, "invoice_id": tx.InvoiceID},
		Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
		Priority: domain.PriorityHigh,
	})
	return nil
}

func invoiceNumber(now time.Time) string {
	return "INV-" + now.Format("20060102") + "-" + uuid.NewString()[:8]
}
