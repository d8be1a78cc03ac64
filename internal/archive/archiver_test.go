package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/store"
)

// memDocs is an in-memory DocumentStore with switchable failure modes.
type memDocs struct {
	collections map[string][]store.Document
	nextID      int
	insertErr   error
	deleteErr   error
	findErr     error
}

func newMemDocs() *memDocs {
	return &memDocs{collections: make(map[string][]store.Document)}
}

func (m *memDocs) seed(collection string, n int, field string, at time.Time) {
	for i := 0; i < n; i++ {
		m.nextID++
		m.collections[collection] = append(m.collections[collection], store.Document{
			"_id": fmt.Sprintf("%s-%d", collection, m.nextID),
			field: at,
		})
	}
}

func (m *memDocs) InsertMany(_ context.Context, collection string, docs []store.Document) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.collections[collection] = append(m.collections[collection], docs...)
	return nil
}

func (m *memDocs) FindOlderThan(_ context.Context, collection, field string, cutoff time.Time, limit int) ([]store.Document, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []store.Document
	for _, d := range m.collections[collection] {
		at, _ := d[field].(time.Time)
		if at.Before(cutoff) {
			out = append(out, d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memDocs) DeleteByIDs(_ context.Context, collection string, ids []any) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	drop := make(map[any]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	var kept []store.Document
	var deleted int64
	for _, d := range m.collections[collection] {
		if _, ok := drop[d["_id"]]; ok {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	m.collections[collection] = kept
	return deleted, nil
}

func (m *memDocs) Count(_ context.Context, collection string) (int64, error) {
	return int64(len(m.collections[collection])), nil
}

func (m *memDocs) Aggregate(context.Context, string, []map[string]any) ([]store.Document, error) {
	return nil, nil
}

func (m *memDocs) Ping(context.Context) error { return nil }

func trackingSource() Source {
	return Source{
		Name:              "tracking",
		Collection:        "tracking_points",
		ArchiveCollection: "tracking_points_archive",
		TimeField:         "recorded_at",
		Retention:         DefaultTrackingRetention,
	}
}

func TestArchiver_MovesOldRowsAndKeepsRecent(t *testing.T) {
	docs := newMemDocs()
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	fresh := time.Now().UTC().Add(-time.Hour)
	docs.seed("tracking_points", 5, "recorded_at", old)
	docs.seed("tracking_points", 3, "recorded_at", fresh)

	a := NewArchiver(docs, []Source{trackingSource()}, zap.NewNop())
	require.NoError(t, a.Run(context.Background()))

	assert.Len(t, docs.collections["tracking_points"], 3)
	assert.Len(t, docs.collections["tracking_points_archive"], 5)
}

func TestArchiver_NeverDeletesUncopiedRows(t *testing.T) {
	docs := newMemDocs()
	docs.seed("tracking_points", 4, "recorded_at", time.Now().UTC().Add(-40*24*time.Hour))
	docs.insertErr = errors.New("mongo write refused")

	a := NewArchiver(docs, []Source{trackingSource()}, zap.NewNop())
	err := a.Run(context.Background())

	require.Error(t, err)
	// The batch is abandoned intact for the next cycle.
	assert.Len(t, docs.collections["tracking_points"], 4)
	assert.Empty(t, docs.collections["tracking_points_archive"])
}

func TestArchiver_Conservation(t *testing.T) {
	docs := newMemDocs()
	docs.seed("tracking_points", 9, "recorded_at", time.Now().UTC().Add(-40*24*time.Hour))

	before, _ := docs.Count(context.Background(), "tracking_points")
	a := NewArchiver(docs, []Source{trackingSource()}, zap.NewNop())
	require.NoError(t, a.Run(context.Background()))

	live, _ := docs.Count(context.Background(), "tracking_points")
	archived, _ := docs.Count(context.Background(), "tracking_points_archive")
	// Every row removed from the live collection exists in the archive.
	assert.Equal(t, before, live+archived)
	assert.EqualValues(t, 9, archived)
	assert.EqualValues(t, 0, live)
}

func TestArchiver_FailingSourceDoesNotStopOthers(t *testing.T) {
	docs := newMemDocs()
	docs.seed("telemetry", 2, "recorded_at", time.Now().UTC().Add(-40*24*time.Hour))

	bad := Source{Name: "tracking", Collection: "tracking_points", ArchiveCollection: "x", TimeField: "recorded_at", Retention: DefaultTrackingRetention}
	good := Source{Name: "telemetry", Collection: "telemetry", ArchiveCollection: "telemetry_archive", TimeField: "recorded_at", Retention: DefaultTelemetryRetention}

	calls := 0
	a := NewArchiver(&flakyDocs{memDocs: docs, failOnCall: &calls}, []Source{bad, good}, zap.NewNop())

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, docs.collections["telemetry_archive"], 2)
}

// flakyDocs fails the very first FindOlderThan and delegates afterwards.
type flakyDocs struct {
	*memDocs
	failOnCall *int
}

func (f *flakyDocs) FindOlderThan(ctx context.Context, collection, field string, cutoff time.Time, limit int) ([]store.Document, error) {
	*f.failOnCall++
	if *f.failOnCall == 1 {
		return nil, errors.New("mongo unavailable")
	}
	return f.memDocs.FindOlderThan(ctx, collection, field, cutoff, limit)
}

type staticOwners struct {
	alive map[string]bool
	err   error
}

func (o *staticOwners) Exists(_ context.Context, ownerID string) (bool, error) {
	if o.err != nil {
		return false, o.err
	}
	return o.alive[ownerID], nil
}

func TestSweepOrphans_DeletesOnlyConfirmedOrphans(t *testing.T) {
	docs := newMemDocs()
	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	docs.collections["documents"] = []store.Document{
		{"_id": "d1", "owner_id": "ship-1", "created_at": old},
		{"_id": "d2", "owner_id": "ship-gone", "created_at": old},
		{"_id": "d3", "owner_id": "", "created_at": old},
		{"_id": "d4", "owner_id": "ship-gone", "created_at": time.Now().UTC()},
	}

	a := NewArchiver(docs, nil, zap.NewNop())
	owners := &staticOwners{alive: map[string]bool{"ship-1": true}}

	deleted, err := a.SweepOrphans(context.Background(), "documents", "owner_id", "created_at", owners)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	remaining := docs.collections["documents"]
	assert.Len(t, remaining, 3)
	for _, d := range remaining {
		assert.NotEqual(t, "d2", d["_id"])
	}
}

func TestSweepOrphans_KeepsUndecidableOwners(t *testing.T) {
	docs := newMemDocs()
	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	docs.collections["documents"] = []store.Document{
		{"_id": "d1", "owner_id": "ship-1", "created_at": old},
	}

	a := NewArchiver(docs, nil, zap.NewNop())
	deleted, err := a.SweepOrphans(context.Background(), "documents", "owner_id", "created_at",
		&staticOwners{err: errors.New("pg down")})

	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, docs.collections["documents"], 1)
}

func TestRotateLogs_ArchivesOldAndPurgesAncient(t *testing.T) {
	dir := t.TempDir()
	archiveDir := filepath.Join(dir, "archive")
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))

	oldLog := filepath.Join(dir, "app-2026-06.log")
	freshLog := filepath.Join(dir, "app-today.log")
	ancient := filepath.Join(archiveDir, "app-2026-01.log")
	require.NoError(t, os.WriteFile(oldLog, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(freshLog, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(ancient, []byte("x"), 0o644))

	past := time.Now().Add(-45 * 24 * time.Hour)
	veryPast := time.Now().Add(-90 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldLog, past, past))
	require.NoError(t, os.Chtimes(ancient, veryPast, veryPast))

	r := NewFileRotator(dir, "", zap.NewNop())
	require.NoError(t, r.RotateLogs(context.Background()))

	assert.NoFileExists(t, oldLog)
	assert.FileExists(t, freshLog)
	assert.FileExists(t, filepath.Join(archiveDir, "app-2026-06.log"))
	assert.NoFileExists(t, ancient)
}

func TestCleanupTempFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "upload.tmp")
	fresh := filepath.Join(dir, "inflight.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	r := NewFileRotator("", dir, zap.NewNop())
	require.NoError(t, r.CleanupTempFiles(context.Background()))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
