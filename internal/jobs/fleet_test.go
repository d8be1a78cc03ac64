package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/tenant"
)

type staticTenants struct {
	tenants []domain.Tenant
}

func (s *staticTenants) ListActive(context.Context) ([]domain.Tenant, error) {
	return s.tenants, nil
}

type capturingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *capturingNotifier) Send(_ context.Context, notif domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notif)
	return nil
}

func (n *capturingNotifier) byType(t domain.NotificationType) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, s := range n.sent {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

type fakeFleet struct {
	drivers   []domain.Driver
	vehicles  []domain.Vehicle
	documents []domain.VehicleDocument
	statuses  map[string]string
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{statuses: make(map[string]string)}
}

func (f *fakeFleet) VehiclesDueMaintenance(_ context.Context, companyID string, _ time.Duration) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	for _, v := range f.vehicles {
		if v.CompanyID == companyID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeFleet) ExpiringLicenses(_ context.Context, companyID string, cutoff time.Time) ([]domain.Driver, error) {
	var out []domain.Driver
	for _, d := range f.drivers {
		if d.CompanyID == companyID && !d.LicenseExpiry.After(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeFleet) ExpiringDocuments(_ context.Context, companyID string, cutoff time.Time) ([]domain.VehicleDocument, error) {
	var out []domain.VehicleDocument
	for _, doc := range f.documents {
		if doc.CompanyID == companyID && !doc.ExpiresAt.After(cutoff) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeFleet) SetDriverStatus(_ context.Context, driverID, status string) error {
	f.statuses["driver:"+driverID] = status
	return nil
}

func (f *fakeFleet) SetVehicleStatus(_ context.Context, vehicleID, status string) error {
	f.statuses["vehicle:"+vehicleID] = status
	return nil
}

type staticDirectory struct {
	admins map[string][]domain.User
}

func (d *staticDirectory) CompanyAdmins(_ context.Context, companyID string) ([]domain.User, error) {
	return d.admins[companyID], nil
}

func fleetDeps(fleet *fakeFleet, notifier *capturingNotifier, dir *staticDirectory) Deps {
	logger := zap.NewNop()
	return Deps{
		Logger:    logger,
		Tenants:   tenant.NewIterator(&staticTenants{tenants: []domain.Tenant{{ID: "co-1", Name: "Acme", Active: true}}}, logger),
		Notifier:  notifier,
		Fleet:     fleet,
		Directory: dir,
	}
}

func TestCheckLicenseExpiry_ExpiredDriverDeactivatedAndNotified(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	fleet := newFakeFleet()
	fleet.drivers = []domain.Driver{{
		ID: "drv-1", CompanyID: "co-1", UserID: "u-drv", Name: "Deniz",
		Status: domain.StatusActive, LicenseExpiry: yesterday,
	}}
	notifier := &capturingNotifier{}
	dir := &staticDirectory{admins: map[string][]domain.User{
		"co-1": {{ID: "u-adm1", CompanyID: "co-1", Role: domain.RoleAdmin}},
	}}

	deps := fleetDeps(fleet, notifier, dir)
	require.NoError(t, deps.checkLicenseExpiry(context.Background()))

	assert.Equal(t, domain.StatusInactive, fleet.statuses["driver:drv-1"])

	sent := notifier.byType(domain.TypeLicenseExpiry)
	require.Len(t, sent, 2)
	recipients := map[string]bool{}
	for _, n := range sent {
		recipients[n.RecipientID] = true
		assert.Equal(t, domain.PriorityUrgent, n.Priority)
		assert.Equal(t, "co-1", n.CompanyID)
	}
	assert.True(t, recipients["u-drv"])
	assert.True(t, recipients["u-adm1"])
}

func TestCheckLicenseExpiry_ApproachingExpiryWarnsWithoutDeactivating(t *testing.T) {
	in10 := time.Now().UTC().AddDate(0, 0, 10)
	fleet := newFakeFleet()
	fleet.drivers = []domain.Driver{{
		ID: "drv-2", CompanyID: "co-1", UserID: "u-drv2", Name: "Ece",
		Status: domain.StatusActive, LicenseExpiry: in10,
	}}
	notifier := &capturingNotifier{}
	dir := &staticDirectory{admins: map[string][]domain.User{
		"co-1": {{ID: "u-adm1", Role: domain.RoleAdmin}},
	}}

	deps := fleetDeps(fleet, notifier, dir)
	require.NoError(t, deps.checkLicenseExpiry(context.Background()))

	_, touched := fleet.statuses["driver:drv-2"]
	assert.False(t, touched)

	sent := notifier.byType(domain.TypeLicenseExpiry)
	require.NotEmpty(t, sent)
	for _, n := range sent {
		assert.Equal(t, domain.PriorityHigh, n.Priority)
	}
}

func TestCheckDocumentExpiry_ExpiredDocumentDeactivatesVehicle(t *testing.T) {
	fleet := newFakeFleet()
	fleet.documents = []domain.VehicleDocument{{
		ID: "doc-1", CompanyID: "co-1", VehicleID: "veh-1", Kind: "insurance",
		Mandatory: true, ExpiresAt: time.Now().UTC().AddDate(0, 0, -2),
	}}
	notifier := &capturingNotifier{}
	dir := &staticDirectory{admins: map[string][]domain.User{
		"co-1": {{ID: "u-adm1", Role: domain.RoleAdmin}},
	}}

	deps := fleetDeps(fleet, notifier, dir)
	require.NoError(t, deps.checkDocumentExpiry(context.Background()))

	assert.Equal(t, domain.StatusInactive, fleet.statuses["vehicle:veh-1"])
	sent := notifier.byType(domain.TypeDocumentExpiry)
	require.Len(t, sent, 1)
	assert.Equal(t, domain.PriorityUrgent, sent[0].Priority)
}

func TestCheckDocumentExpiry_OptionalDocumentNotifiesWithoutDeactivating(t *testing.T) {
	fleet := newFakeFleet()
	fleet.documents = []domain.VehicleDocument{{
		ID: "doc-1", CompanyID: "co-1", VehicleID: "veh-1", Kind: "cargo permit",
		Mandatory: false, ExpiresAt: time.Now().UTC().AddDate(0, 0, -2),
	}}
	notifier := &capturingNotifier{}
	dir := &staticDirectory{admins: map[string][]domain.User{
		"co-1": {{ID: "u-adm1", Role: domain.RoleAdmin}},
	}}

	deps := fleetDeps(fleet, notifier, dir)
	require.NoError(t, deps.checkDocumentExpiry(context.Background()))

	_, touched := fleet.statuses["vehicle:veh-1"]
	assert.False(t, touched)
	sent := notifier.byType(domain.TypeDocumentExpiry)
	require.Len(t, sent, 1)
	assert.Equal(t, domain.PriorityUrgent, sent[0].Priority)
}

func TestCheckVehicleMaintenance_OverdueGetsHighPriority(t *testing.T) {
	fleet := newFakeFleet()
	fleet.vehicles = []domain.Vehicle{
		{ID: "veh-1", CompanyID: "co-1", Plate: "34 AB 123", Status: domain.StatusActive,
			NextMaintenanceAt: time.Now().UTC().AddDate(0, 0, -1)},
		{ID: "veh-2", CompanyID: "co-1", Plate: "34 CD 456", Status: domain.StatusActive,
			NextMaintenanceAt: time.Now().UTC().AddDate(0, 0, 5)},
	}
	notifier := &capturingNotifier{}
	dir := &staticDirectory{admins: map[string][]domain.User{
		"co-1": {{ID: "u-adm1", Role: domain.RoleAdmin}},
	}}

	deps := fleetDeps(fleet, notifier, dir)
	require.NoError(t, deps.checkVehicleMaintenance(context.Background()))

	sent := notifier.byType(domain.TypeMaintenanceDue)
	require.Len(t, sent, 2)
	byVehicle := map[string]domain.Priority{}
	for _, n := range sent {
		byVehicle[n.Data["vehicle_id"].(string)] = n.Priority
	}
	assert.Equal(t, domain.PriorityHigh, byVehicle["veh-1"])
	assert.Equal(t, domain.PriorityNormal, byVehicle["veh-2"])
}
