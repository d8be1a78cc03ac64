package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// notify queues one notification, logging instead of failing the job when
// the send is rejected. Jobs treat notification delivery as best-effort;
// the queue's own retry handles transient dispatch failures.
func (d Deps) notify(ctx context.Context, n domain.Notification) {
	if err := d.Notifier.Send(ctx, n); err != nil {
		d.Logger.Warn("failed to queue notification",
			zap.String("type", string(n.Type)),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
	}
}

// notifyAdmins fans one notification out to every admin of the company.
func (d Deps) notifyAdmins(ctx context.Context, companyID string, template domain.Notification) {
	admins, err := d.Directory.CompanyAdmins(ctx, companyID)
	if err != nil {
		d.Logger.Warn("failed to resolve company admins",
			zap.String("company_id", companyID), zap.Error(err))
		return
	}
	for _, admin := range admins {
		n := template
		n.RecipientID = admin.ID
		n.CompanyID = companyID
		d.notify(ctx, n)
	}
}
