// Package archive moves aged time-series documents out of the live
// collections. The contract per source is copy-then-delete: a row is never
// removed until its copy is confirmed, so a failed batch is simply retried
// on the next cycle.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/store"
)

// MaxBatch bounds how many documents one copy-delete cycle touches.
const MaxBatch = 10_000

// Default retentions per source kind.
const (
	DefaultTrackingRetention   = 30 * 24 * time.Hour
	DefaultTelemetryRetention  = 30 * 24 * time.Hour
	DefaultAuditRetention      = 365 * 24 * time.Hour
	DefaultSoftDeleteRetention = 90 * 24 * time.Hour
)

// Source describes one archivable collection.
type Source struct {
	Name              string
	Collection        string
	ArchiveCollection string
	// TimeField orders documents for cutoff comparison.
	TimeField string
	Retention time.Duration
}

// Summary is the per-source result reported after a run.
type Summary struct {
	Source  string
	Copied  int
	Deleted int64
	Batches int
}

type Archiver struct {
	docs    store.DocumentStore
	sources []Source
	logger  *zap.Logger
}

func NewArchiver(docs store.DocumentStore, sources []Source, logger *zap.Logger) *Archiver {
	return &Archiver{
		docs:    docs,
		sources: sources,
		logger:  logger.With(zap.String("component", "archiver")),
	}
}

// Run archives every configured source. A failing source does not stop the
// others; the first error is returned after all sources were attempted.
func (a *Archiver) Run(ctx context.Context) error {
	var firstErr error
	for _, src := range a.sources {
		sum, err := a.archiveSource(ctx, src)
		if err != nil {
			a.logger.Error("archival failed",
				zap.String("source", src.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.logger.Info("archival complete",
			zap.String("source", src.Name),
			zap.Int("copied", sum.Copied),
			zap.Int64("deleted", sum.Deleted),
			zap.Int("batches", sum.Batches))
	}
	return firstErr
}

func (a *Archiver) archiveSource(ctx context.Context, src Source) (Summary, error) {
	sum := Summary{Source: src.Name}
	cutoff := time.Now().UTC().Add(-src.Retention)

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		docs, err := a.docs.FindOlderThan(ctx, src.Collection, src.TimeField, cutoff, MaxBatch)
		if err != nil {
			return sum, fmt.Errorf("find batch: %w", err)
		}
		if len(docs) == 0 {
			return sum, nil
		}

		// Copy first. If the copy fails the batch is abandoned untouched
		// and picked up again next cycle.
		if err := a.docs.InsertMany(ctx, src.ArchiveCollection, docs); err != nil {
			return sum, fmt.Errorf("copy batch: %w", err)
		}

		ids := make([]any, 0, len(docs))
		for _, d := range docs {
			if id, ok := d["_id"]; ok {
				ids = append(ids, id)
			}
		}
		deleted, err := a.docs.DeleteByIDs(ctx, src.Collection, ids)
		if err != nil {
			// Copies exist; duplicates on the next cycle are acceptable,
			// data loss is not.
			return sum, fmt.Errorf("delete copied batch: %w", err)
		}

		sum.Copied += len(docs)
		sum.Deleted += deleted
		sum.Batches++

		if len(docs) < MaxBatch {
			return sum, nil
		}
	}
}

// OwnerChecker reports whether the domain row a document points at still
// exists. Backed by the relational store.
type OwnerChecker interface {
	Exists(ctx context.Context, ownerID string) (bool, error)
}

// SweepOrphans hard-deletes documents in collection whose owner (named by
// ownerField) no longer exists and which are older than the soft-delete
// retention. Documents with a live owner or an undecidable owner are kept.
func (a *Archiver) SweepOrphans(ctx context.Context, collection, ownerField, timeField string, owners OwnerChecker) (int64, error) {
	cutoff := time.Now().UTC().Add(-DefaultSoftDeleteRetention)

	docs, err := a.docs.FindOlderThan(ctx, collection, timeField, cutoff, MaxBatch)
	if err != nil {
		return 0, fmt.Errorf("find orphan candidates: %w", err)
	}

	var ids []any
	for _, d := range docs {
		owner, _ := d[ownerField].(string)
		if owner == "" {
			continue
		}
		exists, err := owners.Exists(ctx, owner)
		if err != nil {
			// Undecidable owners are skipped, never deleted.
			a.logger.Warn("orphan check failed",
				zap.String("collection", collection), zap.String("owner", owner), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		if id, ok := d["_id"]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := a.docs.DeleteByIDs(ctx, collection, ids)
	if err != nil {
		return 0, fmt.Errorf("delete orphans: %w", err)
	}
	a.logger.Info("orphan sweep complete",
		zap.String("collection", collection), zap.Int64("deleted", deleted))
	return deleted, nil
}
