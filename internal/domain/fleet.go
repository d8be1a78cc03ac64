package domain

import "time"

// Entity statuses shared by vehicles and drivers.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Vehicle carries the fields the maintenance check reads.
type Vehicle struct {
	ID                string
	CompanyID         string
	Plate             string
	Status            string
	NextMaintenanceAt time.Time
}

// Driver carries the fields the license expiry check reads. UserID links
// to the platform account that receives notifications.
type Driver struct {
	ID            string
	CompanyID     string
	UserID        string
	Name          string
	Status        string
	LicenseExpiry time.Time
}

// VehicleDocument is a registration, insurance, or inspection record with
// a hard expiry. Mandatory documents ground the vehicle when they lapse;
// optional ones only raise notifications.
type VehicleDocument struct {
	ID        string
	CompanyID string
	VehicleID string
	Kind      string
	Mandatory bool
	ExpiresAt time.Time
}
