package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketHeatmap/internal/logging"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/tree"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSender) SendWithRetry(_ context.Context, text string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *fakeSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func finished(success, fail int, synthetic bool) model.RefreshStatus {
	return model.RefreshStatus{
		Generation:   1,
		TotalStocks:  success + fail,
		SuccessCount: success,
		FailCount:    fail,
		IsLive:       success > 0,
		Synthetic:    synthetic,
	}
}

func TestStatusAlertTransitions(t *testing.T) {
	// Arrange
	sender := &fakeSender{}
	a := NewStatusAlert(t.Context(), sender, logging.Discard())

	// Act
	a.StatusUpdated(model.RefreshStatus{IsLoading: true}, "Loading...")
	a.StatusUpdated(finished(3, 0, false), "Live")
	a.StatusUpdated(finished(3, 0, false), "Live")
	a.StatusUpdated(finished(0, 3, false), "Data unavailable")
	a.StatusUpdated(finished(3, 0, true), "Live")
	a.StatusUpdated(finished(2, 1, false), "2/3 loaded")
	a.Wait()

	// Assert
	msgs := sender.messages()
	require.Len(t, msgs, 3)
	assert.True(t, containsAny(msgs, "data unavailable"))
	assert.True(t, containsAny(msgs, "synthetic data"))
	assert.True(t, containsAny(msgs, "Heatmap live"))
}

func TestStatusAlertFirstCycleUnavailable(t *testing.T) {
	sender := &fakeSender{}
	a := NewStatusAlert(t.Context(), sender, logging.Discard())

	a.StatusUpdated(finished(0, 5, false), "Data unavailable")
	a.Wait()

	require.Len(t, sender.messages(), 1)
	assert.Contains(t, sender.messages()[0], "All 5 quotes failed")
}

func containsAny(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestFormatStatus(t *testing.T) {
	st := finished(2, 1, true)
	st.LastUpdate = time.Date(2026, 3, 10, 15, 4, 0, 0, time.UTC)
	indices := []model.IndexQuote{{Symbol: "SPY", Name: "S&P 500", ChangePercent: -0.4, Text: "-0.40%"}}

	got := FormatStatus(st, "2/3 loaded", indices, true)

	assert.Contains(t, got, "2/3 loaded")
	assert.Contains(t, got, "🔴 S&amp;P 500: -0.40%")
	assert.Contains(t, got, "Loaded: 2/3 (1 failed)")
	assert.Contains(t, got, "synthetic")
	assert.Contains(t, got, "Market: open")
	assert.Contains(t, got, "2026-03-10 15:04")
}

func TestFormatMovers(t *testing.T) {
	assert.Equal(t, "No stock data loaded yet.", FormatMovers(nil, nil))

	got := FormatMovers(
		[]tree.Stock{{Ticker: "AAA", Name: "A&A", Change: null.FloatFrom(2.5)}},
		[]tree.Stock{{Ticker: "BBB", Name: "Bbb", Change: null.FloatFrom(-1)}},
	)
	assert.Contains(t, got, "1. <b>AAA</b> A&amp;A +2.50%")
	assert.Contains(t, got, "1. <b>BBB</b> Bbb -1.00%")
}

func TestFormatQuote(t *testing.T) {
	q := model.Quote{
		Symbol: "AAPL", CurrentPrice: 178.52, Change: 2.35, ChangePercent: 1.33,
		Open: 176.15, High: 179.23, Low: 175.82, PreviousClose: 176.17,
		High52w: null.FloatFrom(198.23), Low52w: null.FloatFrom(124.17), Source: "finnhub",
	}

	got := FormatQuote(q)

	assert.Contains(t, got, "<b>AAPL</b> 178.52 (+2.35, +1.33%)")
	assert.Contains(t, got, "52w 124.17 - 198.23")
	assert.Contains(t, got, "Source: finnhub")
}

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("TOKEN", "42", "", logging.Discard())
	n.BaseURL = srv.URL
	n.Client = srv.Client()
	return n
}

func TestTelegramSend(t *testing.T) {
	var mu sync.Mutex
	var got map[string]string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		mu.Lock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)
	})

	require.NoError(t, n.Send("hello"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestTelegramSendError(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	err := n.Send("hello")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestTelegramPollDispatchesCommands(t *testing.T) {
	var mu sync.Mutex
	var replies []string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getUpdates":
			assert.Equal(t, "7", r.URL.Query().Get("offset"))
			fmt.Fprint(w, `{"ok":true,"result":[
				{"update_id":7,"message":{"text":" /status "}},
				{"update_id":8},
				{"update_id":9,"message":{"text":"/quiet"}}]}`)
		case "/botTOKEN/sendMessage":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
			fmt.Fprint(w, `{"ok":true}`)
		}
	})

	var commands []string
	next, err := n.poll(t.Context(), n.Client, 7, func(cmd string) string {
		commands = append(commands, cmd)
		if cmd == "/status" {
			return "all good"
		}
		return ""
	})

	require.NoError(t, err)
	assert.Equal(t, 10, next)
	assert.Equal(t, []string{"/status", "/quiet"}, commands)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"all good"}, replies)
}
