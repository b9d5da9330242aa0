package export_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/export"
	"github.com/jonesrussell/ml-inventory/internal/retry"
)

func fastTransportPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		Jitter:       retry.NoJitter,
	}
}

func newTestClient(srvURL string) *export.Client {
	return export.NewClient(
		export.WithBaseURL(srvURL),
		export.WithWorkerKey("test-worker-key"),
		export.WithQueryPolicy(fastTransportPolicy(3)),
		export.WithUpsertPolicy(fastTransportPolicy(3)),
	)
}

func TestQuerySellListings(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query_sellListings", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("X-Worker-Key"), "query endpoint is public")

		var req struct {
			SellListings []map[string]any `json:"sellListings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.SellListings, 1)
		assert.Equal(t, "mercadolibre", req.SellListings[0]["channel"])

		fmt.Fprint(w, `{"error":0,"sellListingsQuery":[
			{"totalRows":2,"channelItemId":"MLM1"},
			{"totalRows":2,"channelItemId":"MLM2"}]}`)
	}))
	defer srv.Close()

	rows, err := newTestClient(srv.URL).QuerySellListings(
		context.Background(), "mercadolibre", "MX", 1, 50)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "MLM1", rows[0].ChannelItemID)
	assert.Equal(t, 2, rows[0].TotalRows)
}

func TestExistingChannelKeys_Paginates(t *testing.T) {
	t.Parallel()

	pages := map[int]string{
		1: `{"error":0,"sellListingsQuery":[` + manyRows(1, export.DefaultPageSize, 201) + `]}`,
		2: `{"error":0,"sellListingsQuery":[` + manyRows(201, 1, 201) + `]}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SellListings []struct {
				Page int `json:"page"`
			} `json:"sellListings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprint(w, pages[req.SellListings[0].Page])
	}))
	defer srv.Close()

	keys, err := newTestClient(srv.URL).ExistingChannelKeys(
		context.Background(), "mercadolibre", "MX")
	require.NoError(t, err)
	assert.Len(t, keys, 201)
}

func manyRows(start, count, total int) string {
	out := ""
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"totalRows":%d,"channelItemId":"MLM%d"}`, total, start+i)
	}
	return out
}

func TestPostSellListings_SendsWorkerKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sellListings", r.URL.Path)
		assert.Equal(t, "test-worker-key", r.Header.Get("X-Worker-Key"))

		var req struct {
			SellListings []domain.SellListing `json:"sellListings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.SellListings, 1)
		assert.Equal(t, "MLM1", req.SellListings[0].ChannelItemID)

		fmt.Fprint(w, `{"error":0}`)
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).PostSellListings(context.Background(),
		[]domain.SellListing{{ChannelItemID: "MLM1", Action: domain.ActionUpsert}})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.ExportedCount)
}

// An application-level error envelope on a 2xx is reported in the result,
// not retried as a transport failure.
func TestPostSellListings_AppLevelError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error":7,"msg":"duplicate batch"}`)
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).PostSellListings(context.Background(),
		[]domain.SellListing{{ChannelItemID: "MLM1"}})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "duplicate batch", result.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostSellListings_RetriesServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"error":0}`)
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).PostSellListings(context.Background(),
		[]domain.SellListing{{ChannelItemID: "MLM1"}})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExchangeRateWalkBack(t *testing.T) {
	t.Parallel()

	// Rates exist only two days back.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/exchange_rate_by_day", r.URL.Path)

		var req struct {
			ExchangeRates []struct {
				AsOfDate string `json:"asOfDate"`
			} `json:"exchangeRates"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.ExchangeRates[0].AsOfDate == "2025-06-13" {
			fmt.Fprint(w, `{"error":0,"exchangeRates":[{"asOfDate":"2025-06-13","rate":0.05842}]}`)
			return
		}
		fmt.Fprint(w, `{"error":0,"exchangeRates":[]}`)
	}))
	defer srv.Close()

	now := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	rate, asOf, err := newTestClient(srv.URL).ExchangeRateWalkBack(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0.05842, rate)
	assert.Equal(t, "2025-06-13", asOf, "as-of is the date the rate was obtained for")
}

func TestExchangeRateWalkBack_NothingFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":0,"exchangeRates":[]}`)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).ExchangeRateWalkBack(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestAllSellListings(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/all_sellListings", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{"error":0,"sellListings":[{"channelItemId":"MLM9","channel":"mercadolibre"}]}`)
	}))
	defer srv.Close()

	rows, err := newTestClient(srv.URL).AllSellListings(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MLM9", rows[0].ChannelItemID)
}
