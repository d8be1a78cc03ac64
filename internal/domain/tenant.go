package domain

import "time"

// Tenant is a company that partitions platform data.
// Nearly every periodic job iterates tenants in bounded batches.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the slice of the directory the dispatcher needs: contact
// addresses and roles. Empty Email or Phone silently disables that channel.
type User struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
}

const (
	RoleAdmin  = "admin"
	RoleDriver = "driver"
)
