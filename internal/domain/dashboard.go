package domain

import "time"

// DashboardSnapshot is the cached per-tenant KPI bundle.
// The cache key always embeds TenantID so snapshots never cross tenants.
type DashboardSnapshot struct {
	TenantID        string         `json:"tenant_id"`
	GeneratedAt     time.Time      `json:"generated_at"`
	ShipmentsStatus map[string]int `json:"shipments_by_status"`
	FleetStatus     map[string]int `json:"fleet_by_status"`
	DriversStatus   map[string]int `json:"drivers_by_status"`
	TodayShipments  int            `json:"today_shipments"`
	TodayDeliveries int            `json:"today_deliveries"`
	TodayRevenue    float64        `json:"today_revenue"`
}
