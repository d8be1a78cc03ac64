package store

// Redis key spaces. All Redis-resident state lives under these keys; the
// helpers exist so no caller ever assembles a key by hand.

const (
	// NotificationsPendingKey is the FIFO dispatch queue.
	NotificationsPendingKey = "notifications:pending"
	// HealthKey holds the latest HealthSnapshot with a 10 minute TTL.
	HealthKey = "system:health"
)

// PushSubscriptionsKey holds a user's registered push endpoints as JSON.
func PushSubscriptionsKey(userID string) string {
	return "push:subscriptions:" + userID
}

// DashboardKey holds a tenant's cached KPI snapshot. The tenant id is part
// of the key so snapshots can never cross tenants.
func DashboardKey(companyID string) string {
	return "analytics:dashboard:" + companyID
}

// VehiclePositionKey holds a vehicle's last reported position as JSON.
func VehiclePositionKey(vehicleID string) string {
	return "tracking:vehicle:" + vehicleID
}

// ETAKey holds an ML-predicted arrival estimate for a shipment.
func ETAKey(shipmentID string) string {
	return "ml:eta:" + shipmentID
}
