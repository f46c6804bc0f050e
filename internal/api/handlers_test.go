package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketHeatmap/internal/logging"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/pipeline"
	"MarketHeatmap/internal/tree"
)

type fakePipeline struct {
	mu        sync.Mutex
	refreshed chan struct{}
	status    model.RefreshStatus
	quotes    map[string]model.Quote
	movers    []tree.Stock
	gainers   bool
	limit     int
	period    model.Period
}

func (f *fakePipeline) RefreshAll(context.Context) error {
	f.refreshed <- struct{}{}
	return nil
}

func (f *fakePipeline) Status() model.RefreshStatus { return f.status }
func (f *fakePipeline) StatusText() string          { return "3/3 loaded" }
func (f *fakePipeline) Source() string              { return "finnhub" }

func (f *fakePipeline) Tree() []tree.Sector {
	return []tree.Sector{{Name: "Tech", Stocks: []tree.Stock{{Ticker: "AAPL", Name: "Apple", Sector: "Tech", MarketCap: 3000, Change: null.FloatFrom(1.2)}}}}
}

func (f *fakePipeline) TopMovers(gainers bool, limit int) []tree.Stock {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gainers, f.limit = gainers, limit
	return f.movers
}

func (f *fakePipeline) FetchOne(_ context.Context, ticker string) (model.Quote, bool) {
	q, ok := f.quotes[ticker]
	return q, ok
}

func (f *fakePipeline) FetchChart(_ context.Context, ticker string, period model.Period) (model.ChartSeries, bool) {
	f.mu.Lock()
	f.period = period
	f.mu.Unlock()
	if _, ok := f.quotes[ticker]; !ok {
		return nil, false
	}
	return model.ChartSeries{{Date: time.Unix(0, 0).UTC(), Price: 10, Close: 10}}, true
}

func (f *fakePipeline) Indices(context.Context) ([]model.IndexQuote, error) {
	return []model.IndexQuote{{Symbol: "SPY", Name: "S&P 500", ChangePercent: 0.5, Text: "+0.50%"}}, nil
}

func (f *fakePipeline) Detail(_ context.Context, ticker string) (pipeline.Detail, bool) {
	q, ok := f.quotes[ticker]
	if !ok {
		return pipeline.Detail{}, false
	}
	return pipeline.Detail{Quote: q, ChangeText: "+1.00%"}, true
}

func newTestServer(t *testing.T) (*fakePipeline, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fp := &fakePipeline{
		refreshed: make(chan struct{}, 1),
		status:    model.RefreshStatus{TotalStocks: 3, SuccessCount: 2, FailCount: 1, Generation: 4},
		quotes:    map[string]model.Quote{"AAPL": {Symbol: "AAPL", CurrentPrice: 190, ChangePercent: 1}},
	}
	h := NewHandler(context.Background(), fp, logging.Discard())
	h.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	return fp, NewRouter(h, logging.Discard())
}

func doRequest(t *testing.T, r http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(t, r, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["progress"])
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, "3/3 loaded", body["message"])
	assert.Equal(t, false, body["isRefreshing"])
	assert.Equal(t, true, body["marketOpen"])
	assert.Equal(t, "finnhub", body["source"])
	assert.Equal(t, float64(4), body["generation"])
}

func TestRefreshStartsInBackground(t *testing.T) {
	fp, r := newTestServer(t)
	rec := doRequest(t, r, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-fp.refreshed:
	case <-time.After(time.Second):
		t.Fatal("refresh was not triggered")
	}
}

func TestTree(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(t, r, http.MethodGet, "/api/tree")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sectors []struct {
			Name   string `json:"name"`
			Stocks []struct {
				Ticker string   `json:"ticker"`
				Change *float64 `json:"change"`
			} `json:"stocks"`
		} `json:"sectors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sectors, 1)
	assert.Equal(t, "Tech", body.Sectors[0].Name)
	require.Len(t, body.Sectors[0].Stocks, 1)
	assert.Equal(t, "AAPL", body.Sectors[0].Stocks[0].Ticker)
	require.NotNil(t, body.Sectors[0].Stocks[0].Change)
	assert.InDelta(t, 1.2, *body.Sectors[0].Stocks[0].Change, 1e-9)
}

func TestQuote(t *testing.T) {
	_, r := newTestServer(t)

	rec := doRequest(t, r, http.MethodGet, "/api/quote/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	var q model.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, "AAPL", q.Symbol)

	rec = doRequest(t, r, http.MethodGet, "/api/quote/NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChartPeriod(t *testing.T) {
	fp, r := newTestServer(t)

	rec := doRequest(t, r, http.MethodGet, "/api/chart/AAPL?period=5y")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Period5Y, fp.period)

	rec = doRequest(t, r, http.MethodGet, "/api/chart/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Period1M, fp.period)

	rec = doRequest(t, r, http.MethodGet, "/api/chart/NOPE?period=1D")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMovers(t *testing.T) {
	fp, r := newTestServer(t)
	fp.movers = []tree.Stock{{Ticker: "AAPL", Change: null.FloatFrom(2)}}

	rec := doRequest(t, r, http.MethodGet, "/api/movers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fp.gainers)
	assert.Equal(t, defaultMoversLimit, fp.limit)

	rec = doRequest(t, r, http.MethodGet, "/api/movers?type=losers&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fp.gainers)
	assert.Equal(t, 3, fp.limit)

	rec = doRequest(t, r, http.MethodGet, "/api/movers?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndicesAndDetail(t *testing.T) {
	_, r := newTestServer(t)

	rec := doRequest(t, r, http.MethodGet, "/api/indices")
	require.Equal(t, http.StatusOK, rec.Code)
	var indices []model.IndexQuote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &indices))
	require.Len(t, indices, 1)
	assert.Equal(t, "+0.50%", indices[0].Text)

	rec = doRequest(t, r, http.MethodGet, "/api/detail/AAPL")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, r, http.MethodGet, "/api/detail/NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

var _ Pipeline = (*pipeline.Pipeline)(nil)
