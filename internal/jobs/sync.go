package jobs

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

// etaTTL bounds how long a cached prediction is trusted.
const etaTTL = 4 * time.Hour

// syncExternalSystems pushes per-tenant state to the partner system. The
// job is registered only when the feature flag is on and a syncer is
// wired.
func (d Deps) syncExternalSystems(ctx context.Context) error {
	return d.forEachTenant(ctx, "syncExternalSystems", func(ctx context.Context, t domain.Tenant) error {
		return d.Syncer.Sync(ctx, t.ID)
	})
}

// syncMLPredictions pulls fresh ETA predictions and caches them per
// shipment under ml:eta:{shipmentId}.
func (d Deps) syncMLPredictions(ctx context.Context) error {
	return d.forEachTenant(ctx, "syncMLPredictions", func(ctx context.Context, t domain.Tenant) error {
		etas, err := d.ML.PredictETAs(ctx, t.ID)
		if err != nil {
			return err
		}
		cached := 0
		for shipmentID, eta := range etas {
			b, err := json.Marshal(map[string]any{
				"shipment_id":  shipmentID,
				"predicted_at": time.Now().UTC(),
				"eta":          eta,
			})
			if err != nil {
				continue
			}
			if err := d.Cache.Set(ctx, store.ETAKey(shipmentID), b, etaTTL); err != nil {
				d.Logger.Warn("failed to cache eta prediction",
					zap.String("shipment_id", shipmentID), zap.Error(err))
				continue
			}
			cached++
		}
		if cached > 0 {
			d.Logger.Debug("eta predictions cached",
				zap.String("company_id", t.ID), zap.Int("count", cached))
		}
		return nil
	})
}
