package export

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/logger"
	"github.com/jonesrussell/ml-inventory/internal/metrics"
	"github.com/jonesrussell/ml-inventory/internal/retry"
	"github.com/jonesrussell/ml-inventory/internal/transform"
)

// Backend is the subset of the store client the engine drives. Narrowed for
// testability.
type Backend interface {
	ExistingChannelKeys(ctx context.Context, channel, market string) (map[string]struct{}, error)
	PostSellListings(ctx context.Context, listings []domain.SellListing) (*UpsertResult, error)
}

// Engine runs one export per invocation: transform, query existing state,
// diff, upsert the delta. Idempotent on channel key: re-running with an
// unchanged existing set and unchanged inputs recomputes the same delta.
type Engine struct {
	backend     Backend
	queryPolicy retry.Policy
	fx          transform.FXRate
	policy      transform.Policy
	log         logger.Interface
	now         func() time.Time
}

// NewEngine creates an export engine. The query policy here is the engine's
// own outer retry around the existing-state query, independent of the
// client's transport retry; on exhaustion the engine degrades to an empty
// existing set rather than aborting.
func NewEngine(backend Backend, queryPolicy retry.Policy, fx transform.FXRate, policy transform.Policy, log logger.Interface) *Engine {
	return &Engine{
		backend:     backend,
		queryPolicy: queryPolicy,
		fx:          fx,
		policy:      policy,
		log:         log,
		now:         time.Now,
	}
}

// Run executes one export for the given items and returns the structured
// outcome. Business-rule rejections are never errors; the only error return
// is context cancellation.
func (e *Engine) Run(ctx context.Context, items []*domain.Item) (*domain.ExportOutcome, error) {
	runID := uuid.NewString()
	log := e.log.With("run_id", runID)

	outcome := &domain.ExportOutcome{
		RunID: runID,
		AsOf:  e.fx.AsOf,
	}

	// Step 1: transform.
	listings, skips := transform.All(items, e.fx, e.policy, e.now())
	outcome.SkippedCount = countSkips(skips)
	outcome.SkipReasons = skips
	for reason, n := range skips {
		metrics.RecordSkips(reason, n)
	}
	log.Info("transformed items",
		"input", len(items), "listings", len(listings), "skipped", outcome.SkippedCount)

	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}

	// Step 2: query existing state, degrading to an empty set on exhaustion.
	// Worst case is redundant upserts, which the backend's idempotent upsert
	// absorbs; lost data would not be.
	existing := e.queryExisting(ctx, log)
	outcome.ExistingCount = len(existing)

	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}

	// Step 3: diff. Deterministic: input order is preserved.
	newListings := make([]domain.SellListing, 0, len(listings))
	for _, l := range listings {
		if _, ok := existing[l.ChannelItemID]; !ok {
			newListings = append(newListings, l)
		}
	}
	outcome.NewCount = len(newListings)

	// Step 4: upsert the delta. An empty delta short-circuits the POST.
	outcome.OK = true
	if len(newListings) > 0 {
		result, err := e.backend.PostSellListings(ctx, newListings)
		if err != nil {
			log.Error("upsert failed", "error", err.Error(), "new_count", len(newListings))
			outcome.OK = false
		} else if !result.OK {
			log.Error("backend rejected upsert", "message", result.Message)
			outcome.OK = false
		} else {
			metrics.RecordUpserts(result.ExportedCount)
		}
	}

	if outcome.OK {
		metrics.RecordExportRun("ok")
	} else {
		metrics.RecordExportRun("failed")
	}

	log.Info("export run finished",
		"ok", outcome.OK,
		"existing", outcome.ExistingCount,
		"new", outcome.NewCount,
		"skipped", outcome.SkippedCount)

	return outcome, nil
}

// queryExisting wraps the existing-state query in the engine's bounded retry
// and degrades to an empty set when attempts are exhausted.
func (e *Engine) queryExisting(ctx context.Context, log logger.Interface) map[string]struct{} {
	var existing map[string]struct{}

	err := retry.Do(ctx, e.queryPolicy, func() error {
		keys, queryErr := e.backend.ExistingChannelKeys(ctx, domain.Channel, domain.Market)
		if queryErr != nil {
			return queryErr
		}
		existing = keys
		return nil
	})
	if err != nil {
		log.Warn("existing-listings query exhausted, proceeding with empty set",
			"error", err.Error())
		return map[string]struct{}{}
	}

	return existing
}

func countSkips(skips map[string]int) int {
	total := 0
	for _, n := range skips {
		total += n
	}
	return total
}
