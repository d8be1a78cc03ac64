package domain

import "time"

// Channel is one delivery medium for a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Priority controls urgency styling on the client and alerting behaviour.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// NotificationType enumerates every notification the platform emits.
// The dispatcher selects email and SMS templates by this type.
type NotificationType string

const (
	TypeInvoiceGenerated NotificationType = "invoice_generated"
	TypePaymentReminder  NotificationType = "payment_reminder"
	TypePaymentOverdue   NotificationType = "payment_overdue"
	TypePaymentReceived  NotificationType = "payment_received"
	TypePaymentFailed    NotificationType = "payment_failed"
	TypeLicenseExpiry    NotificationType = "license_expiry"
	TypeDocumentExpiry   NotificationType = "document_expiry"
	TypeMaintenanceDue   NotificationType = "maintenance_due"
	TypeShipmentUpdate   NotificationType = "shipment_update"
	TypeDailyDigest      NotificationType = "daily_digest"
	TypeReportReady      NotificationType = "report_ready"
	TypeSystemAlert      NotificationType = "system_alert"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeInvoiceGenerated, TypePaymentReminder, TypePaymentOverdue,
		TypePaymentReceived, TypePaymentFailed, TypeLicenseExpiry,
		TypeDocumentExpiry, TypeMaintenanceDue, TypeShipmentUpdate,
		TypeDailyDigest, TypeReportReady, TypeSystemAlert:
		return true
	}
	return false
}

// Notification is the core entity the queue and dispatcher move around.
// The in-app copy persists in the relational store; queued dispatch items
// live in Redis wrapped in a QueueItem.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	CompanyID   string           `json:"company_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data,omitempty"`
	Channels    []Channel        `json:"channels"`
	Priority    Priority         `json:"priority"`
	CreatedAt   time.Time        `json:"created_at"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
}

func (n *Notification) Validate() error {
	if n.RecipientID == "" {
		return ErrInvalidRecipient
	}
	if !n.Type.IsValid() {
		return ErrInvalidType
	}
	if !n.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if len(n.Channels) == 0 {
		return ErrNoChannels
	}
	for _, c := range n.Channels {
		if !c.IsValid() {
			return ErrInvalidChannel
		}
	}
	return nil
}

// HasChannel reports whether the notification requests delivery on c.
func (n *Notification) HasChannel(c Channel) bool {
	for _, ch := range n.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// MaxQueueRetries caps redelivery attempts. A QueueItem is observed at most
// MaxQueueRetries+1 times: the initial attempt plus three retries.
const MaxQueueRetries = 3

// QueueItem is the Redis-resident envelope around a queued notification.
type QueueItem struct {
	Notification Notification `json:"notification"`
	RetryCount   int          `json:"retry_count"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
}

// DeliveryState is the per-channel result of one dispatch.
type DeliveryState string

const (
	DeliveryOK      DeliveryState = "ok"
	DeliveryFailed  DeliveryState = "failed"
	DeliverySkipped DeliveryState = "skipped"
)

// ChannelOutcome reports what happened on a single channel.
type ChannelOutcome struct {
	State DeliveryState `json:"state"`
	Error string        `json:"error,omitempty"`
}

// DispatchResult maps every requested channel to its outcome.
// One channel's failure never removes another channel's entry.
type DispatchResult map[Channel]ChannelOutcome

// Failed reports whether any channel ended in DeliveryFailed.
func (r DispatchResult) Failed() bool {
	for _, o := range r {
		if o.State == DeliveryFailed {
			return true
		}
	}
	return false
}

// PushSubscription is one registered push endpoint for a user, stored as
// JSON under push:subscriptions:{userId} in Redis.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Auth     string `json:"auth"`
	P256DH   string `json:"p256dh"`
}
