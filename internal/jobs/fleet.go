package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// maintenanceWindow is how far ahead the maintenance check looks.
const maintenanceWindow = 7 * 24 * time.Hour

// expirySeverity maps days-until-expiry to a notification priority.
// Callers handle the ≤0 deactivation side effect themselves.
func expirySeverity(daysLeft int) (domain.Priority, bool) {
	switch {
	case daysLeft <= ThresholdUrgent:
		return domain.PriorityUrgent, true
	case daysLeft <= ThresholdWarning:
		return domain.PriorityHigh, true
	case daysLeft <= ThresholdNotice:
		return domain.PriorityNormal, true
	}
	return "", false
}

func daysUntil(t time.Time, now time.Time) int {
	return int(t.Sub(now).Hours() / 24)
}

// checkVehicleMaintenance notifies admins about vehicles due for service
// within the week.
func (d Deps) checkVehicleMaintenance(ctx context.Context) error {
	return d.forEachTenant(ctx, "checkVehicleMaintenance", func(ctx context.Context, t domain.Tenant) error {
		due, err := d.Fleet.VehiclesDueMaintenance(ctx, t.ID, maintenanceWindow)
		if err != nil {
			return err
		}
		for _, v := range due {
			overdue := v.NextMaintenanceAt.Before(time.Now().UTC())
			priority := domain.PriorityNormal
			if overdue {
				priority = domain.PriorityHigh
			}
			d.notifyAdmins(ctx, t.ID, domain.Notification{
				Type:  domain.TypeMaintenanceDue,
				Title: "Vehicle maintenance due",
				Message: fmt.Sprintf("Vehicle %s is due for maintenance on %s.",
					v.Plate, v.NextMaintenanceAt.Format("2006-01-02")),
				Data:     map[string]any{"vehicle_id": v.ID, "plate": v.Plate},
				Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
				Priority: priority,
			})
		}
		return nil
	})
}

// checkLicenseExpiry warns about driver licenses approaching expiry and
// deactivates drivers whose license has already lapsed. The driver and the
// company admins are both notified.
func (d Deps) checkLicenseExpiry(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, ThresholdNotice)

	return d.forEachTenant(ctx, "checkLicenseExpiry", func(ctx context.Context, t domain.Tenant) error {
		drivers, err := d.Fleet.ExpiringLicenses(ctx, t.ID, cutoff)
		if err != nil {
			return err
		}
		for _, drv := range drivers {
			daysLeft := daysUntil(drv.LicenseExpiry, now)
			priority, ok := expirySeverity(daysLeft)
			if !ok {
				continue
			}

			expired := daysLeft <= 0
			if expired {
				if err := d.Fleet.SetDriverStatus(ctx, drv.ID, domain.StatusInactive); err != nil {
					return err
				}
				d.Logger.Warn("driver deactivated, license expired",
					zap.String("company_id", t.ID),
					zap.String("driver_id", drv.ID),
					zap.Time("license_expiry", drv.LicenseExpiry))
				priority = domain.PriorityUrgent
			}

			msg := fmt.Sprintf("License for %s expires on %s.", drv.Name, drv.LicenseExpiry.Format("2006-01-02"))
			if expired {
				msg = fmt.Sprintf("License for %s expired on %s; the driver was set inactive.",
					drv.Name, drv.LicenseExpiry.Format("2006-01-02"))
			}
			n := domain.Notification{
				Type:     domain.TypeLicenseExpiry,
				Title:    "Driver license expiry",
				Message:  msg,
				Data:     map[string]any{"driver_id": drv.ID, "days_left": daysLeft},
				Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
				Priority: priority,
			}

			if drv.UserID != "" {
				personal := n
				personal.RecipientID = drv.UserID
				personal.CompanyID = t.ID
				d.notify(ctx, personal)
			}
			d.notifyAdmins(ctx, t.ID, n)
		}
		return nil
	})
}

// checkDocumentExpiry mirrors the license check for vehicle documents.
// A lapsed mandatory document sets the vehicle inactive; optional
// documents only notify.
func (d Deps) checkDocumentExpiry(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, ThresholdNotice)

	return d.forEachTenant(ctx, "checkDocumentExpiry", func(ctx context.Context, t domain.Tenant) error {
		docs, err := d.Fleet.ExpiringDocuments(ctx, t.ID, cutoff)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			daysLeft := daysUntil(doc.ExpiresAt, now)
			priority, ok := expirySeverity(daysLeft)
			if !ok {
				continue
			}

			expired := daysLeft <= 0
			if expired {
				priority = domain.PriorityUrgent
				if doc.Mandatory {
					if err := d.Fleet.SetVehicleStatus(ctx, doc.VehicleID, domain.StatusInactive); err != nil {
						return err
					}
					d.Logger.Warn("vehicle deactivated, mandatory document expired",
						zap.String("company_id", t.ID),
						zap.String("vehicle_id", doc.VehicleID),
						zap.String("kind", doc.Kind))
				}
			}

			msg := fmt.Sprintf("%s for vehicle %s expires on %s.",
				doc.Kind, doc.VehicleID, doc.ExpiresAt.Format("2006-01-02"))
			switch {
			case expired && doc.Mandatory:
				msg = fmt.Sprintf("%s for vehicle %s expired; the vehicle was set inactive.",
					doc.Kind, doc.VehicleID)
			case expired:
				msg = fmt.Sprintf("%s for vehicle %s expired.", doc.Kind, doc.VehicleID)
			}
			d.notifyAdmins(ctx, t.ID, domain.Notification{
				Type:     domain.TypeDocumentExpiry,
				Title:    "Vehicle document expiry",
				Message:  msg,
				Data:     map[string]any{"document_id": doc.ID, "vehicle_id": doc.VehicleID, "days_left": daysLeft},
				Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
				Priority: priority,
			})
		}
		return nil
	})
}
