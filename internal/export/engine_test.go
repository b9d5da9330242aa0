package export_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/export"
	"github.com/jonesrussell/ml-inventory/internal/identity"
	"github.com/jonesrussell/ml-inventory/internal/logger"
	"github.com/jonesrussell/ml-inventory/internal/retry"
	"github.com/jonesrussell/ml-inventory/internal/transform"
)

// fakeBackend simulates the store: queries answer from keys, upserts append
// to keys so a second run sees the first run's writes.
type fakeBackend struct {
	keys        map[string]struct{}
	queryErr    error
	upsertErr   error
	queryCalls  int
	upsertCalls int
	upserted    [][]domain.SellListing
}

func newFakeBackend(keys ...string) *fakeBackend {
	b := &fakeBackend{keys: make(map[string]struct{})}
	for _, k := range keys {
		b.keys[k] = struct{}{}
	}
	return b
}

func (b *fakeBackend) ExistingChannelKeys(_ context.Context, _, _ string) (map[string]struct{}, error) {
	b.queryCalls++
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	out := make(map[string]struct{}, len(b.keys))
	for k := range b.keys {
		out[k] = struct{}{}
	}
	return out, nil
}

func (b *fakeBackend) PostSellListings(_ context.Context, listings []domain.SellListing) (*export.UpsertResult, error) {
	b.upsertCalls++
	if b.upsertErr != nil {
		return nil, b.upsertErr
	}
	b.upserted = append(b.upserted, listings)
	for _, l := range listings {
		b.keys[l.ChannelItemID] = struct{}{}
	}
	return &export.UpsertResult{OK: true, StatusCode: 200, ExportedCount: len(listings)}, nil
}

func fastQueryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		Jitter:       retry.NoJitter,
	}
}

func testItem(itemID string) *domain.Item {
	return &domain.Item{
		Source:        "mercadolibre_scrape",
		Permalink:     "https://articulo.mercadolibre.com.mx/MLM-" + itemID[3:] + "-prueba-_JM",
		Title:         "iPhone 15 128GB",
		ItemID:        itemID,
		SellerID:      42,
		PriceMXN:      14999,
		Currency:      domain.CurrencyMXN,
		ChannelItemID: itemID,
		IDSource:      string(identity.SourceItemID),
		CapturedAt:    "2025-06-15T10:00:00Z",
	}
}

func newEngine(backend export.Backend) *export.Engine {
	fx := transform.FXRate{RateToUSD: 0.05842, AsOf: "2025-06-14"}
	return export.NewEngine(backend, fastQueryPolicy(), fx, transform.Policy{}, logger.NewNop())
}

func TestRun_UpsertsOnlyDelta(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend("MLM1111111")
	engine := newEngine(backend)

	outcome, err := engine.Run(context.Background(),
		[]*domain.Item{testItem("MLM1111111"), testItem("MLM2222222")})
	require.NoError(t, err)

	assert.True(t, outcome.OK)
	assert.Equal(t, 1, outcome.ExistingCount)
	assert.Equal(t, 1, outcome.NewCount)
	assert.Equal(t, 0, outcome.SkippedCount)
	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, "2025-06-14", outcome.AsOf)

	require.Len(t, backend.upserted, 1)
	require.Len(t, backend.upserted[0], 1)
	assert.Equal(t, "MLM2222222", backend.upserted[0][0].ChannelItemID)
}

// Running twice with unchanged inputs: the second run's delta is empty
// because the first run's upserts are now in the existing set.
func TestRun_Idempotent(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	engine := newEngine(backend)
	items := []*domain.Item{testItem("MLM1111111"), testItem("MLM2222222")}

	first, err := engine.Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewCount)

	second, err := engine.Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ExistingCount)
	assert.Equal(t, 0, second.NewCount)
	assert.Equal(t, 1, backend.upsertCalls, "empty delta must short-circuit the POST")
}

func TestRun_EmptyDeltaSkipsPost(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend("MLM1111111")
	engine := newEngine(backend)

	outcome, err := engine.Run(context.Background(), []*domain.Item{testItem("MLM1111111")})
	require.NoError(t, err)

	assert.True(t, outcome.OK)
	assert.Equal(t, 0, outcome.NewCount)
	assert.Zero(t, backend.upsertCalls)
}

// Query exhaustion degrades to an empty existing set: everything is upserted
// rather than the run aborting.
func TestRun_QueryFailureDegrades(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend("MLM1111111")
	backend.queryErr = errors.New("backend down")
	engine := newEngine(backend)

	outcome, err := engine.Run(context.Background(), []*domain.Item{testItem("MLM1111111")})
	require.NoError(t, err)

	assert.True(t, outcome.OK)
	assert.Equal(t, 0, outcome.ExistingCount)
	assert.Equal(t, 1, outcome.NewCount, "redundant upsert beats lost data")
	assert.Equal(t, 2, backend.queryCalls, "bounded retry before degrading")
	assert.Equal(t, 1, backend.upsertCalls)
}

func TestRun_UpsertFailureReportsNotOK(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.upsertErr = errors.New("boom")
	engine := newEngine(backend)

	outcome, err := engine.Run(context.Background(), []*domain.Item{testItem("MLM1111111")})
	require.NoError(t, err)

	assert.False(t, outcome.OK)
	// Counts stay populated so the caller can retry safely.
	assert.Equal(t, 1, outcome.NewCount)
	assert.Equal(t, 0, outcome.ExistingCount)
}

func TestRun_SkipReasonsCounted(t *testing.T) {
	t.Parallel()

	noPrice := testItem("MLM1111111")
	noPrice.PriceMXN = 0
	noTitle := testItem("MLM2222222")
	noTitle.Title = ""

	backend := newFakeBackend()
	engine := newEngine(backend)

	outcome, err := engine.Run(context.Background(),
		[]*domain.Item{testItem("MLM3333333"), noPrice, noTitle})
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.SkippedCount)
	assert.Equal(t, map[string]int{
		transform.SkipMissingPrice:   1,
		transform.SkipInvalidPayload: 1,
	}, outcome.SkipReasons)
	assert.Equal(t, 1, outcome.NewCount)
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newEngine(newFakeBackend())
	_, err := engine.Run(ctx, []*domain.Item{testItem("MLM1111111")})
	assert.Error(t, err)
}
