package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/config"
	"github.com/trackfleet/logistics-core/internal/scheduler"
)

type nopSyncer struct{}

func (nopSyncer) Sync(context.Context, string) error { return nil }

func baseDeps() Deps {
	return Deps{
		Logger: zap.NewNop(),
		Cfg:    &config.Config{Timezone: "Europe/Istanbul"},
	}
}

func TestRegisterAll_RegistersFullJobSet(t *testing.T) {
	deps := baseDeps()
	reg := scheduler.NewRegistry(zap.NewNop())
	require.NoError(t, deps.RegisterAll(reg))

	jobs := reg.List()
	assert.Len(t, jobs, 24)

	wantExpr := map[string]string{
		"processRecurringInvoices": "0 1 * * *",
		"processNotificationQueue": "*/5 * * * *",
		"archiveOldTrackingData":   "0 3 * * 0",
		"generateMonthlyReports":   "0 7 1 * *",
		"cacheAnalyticsData":       "*/15 * * * *",
		"healthCheck":              "*/10 * * * *",
	}
	got := map[string]scheduler.JobStatus{}
	for _, j := range jobs {
		got[j.Name] = j
		assert.Equal(t, "Europe/Istanbul", j.Timezone, j.Name)
	}
	for name, expr := range wantExpr {
		require.Contains(t, got, name)
		assert.Equal(t, expr, got[name].Expression, name)
	}
}

func TestRegisterAll_FeatureGates(t *testing.T) {
	deps := baseDeps()
	reg := scheduler.NewRegistry(zap.NewNop())
	require.NoError(t, deps.RegisterAll(reg))

	for _, j := range reg.List() {
		switch j.Name {
		case "syncExternalSystems", "syncMLPredictions":
			assert.False(t, j.Enabled, j.Name)
		default:
			assert.True(t, j.Enabled, j.Name)
		}
	}
}

func TestRegisterAll_FeatureGatesOpenWithConfig(t *testing.T) {
	deps := baseDeps()
	deps.Cfg.ExternalSyncEnabled = true
	deps.Syncer = nopSyncer{}
	reg := scheduler.NewRegistry(zap.NewNop())
	require.NoError(t, deps.RegisterAll(reg))

	for _, j := range reg.List() {
		if j.Name == "syncExternalSystems" {
			assert.True(t, j.Enabled)
		}
		if j.Name == "syncMLPredictions" {
			// Still gated: no ML service URL.
			assert.False(t, j.Enabled)
		}
	}
}
