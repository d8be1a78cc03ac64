package domain

import "errors"

// Sentinel errors used throughout the application.
// Callers match with errors.Is; admin surfaces translate them to responses.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRecipient = errors.New("recipient must not be empty")
	ErrInvalidType      = errors.New("unknown notification type")
	ErrInvalidPriority  = errors.New("invalid priority: must be low, normal, high, or urgent")
	ErrInvalidChannel   = errors.New("invalid channel: must be in_app, email, sms, or push")
	ErrNoChannels       = errors.New("notification must request at least one channel")

	// Scheduler / registry.
	ErrDuplicateJob    = errors.New("job name already registered")
	ErrInvalidSchedule = errors.New("invalid cron schedule")
	ErrUnknownJob      = errors.New("unknown job name")
	ErrJobDisabled     = errors.New("job is disabled")

	// Backing stores.
	ErrQueueUnavailable = errors.New("notification queue unavailable")
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// Realtime bus.
	ErrRoomUnauthorized = errors.New("not authorized to join room")
	ErrRoomInvalid      = errors.New("invalid room key")
	ErrNotDriver        = errors.New("location publish requires driver role")
)
