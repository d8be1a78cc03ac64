package domain

import "time"

// Invoice statuses.
const (
	InvoicePending = "pending"
	InvoicePaid    = "paid"
	InvoiceOverdue = "overdue"
)

// Payment transaction statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// RecurringInvoice is a billing template that spawns a real invoice each
// time its NextRunAt comes due.
type RecurringInvoice struct {
	ID           string
	CompanyID    string
	CustomerID   string
	Amount       float64
	Currency     string
	IntervalDays int
	NextRunAt    time.Time
	Active       bool
}

// Invoice is one issued bill. Only the fields the billing jobs touch.
type Invoice struct {
	ID         string
	CompanyID  string
	CustomerID string
	Number     string
	Amount     float64
	Currency   string
	Status     string
	DueDate    time.Time
	CreatedAt  time.Time
}

// PaymentTransaction is a gateway-side payment attempt tracked for
// reconciliation.
type PaymentTransaction struct {
	ID         string
	InvoiceID  string
	CompanyID  string
	Amount     float64
	Status     string
	GatewayRef string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
