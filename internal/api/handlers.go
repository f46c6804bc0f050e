package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"MarketHeatmap/internal/market"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/pipeline"
	"MarketHeatmap/internal/tree"
)

// Pipeline is what the HTTP API reads from and triggers.
type Pipeline interface {
	RefreshAll(ctx context.Context) error
	Status() model.RefreshStatus
	StatusText() string
	Tree() []tree.Sector
	TopMovers(gainers bool, limit int) []tree.Stock
	FetchOne(ctx context.Context, ticker string) (model.Quote, bool)
	FetchChart(ctx context.Context, ticker string, period model.Period) (model.ChartSeries, bool)
	Indices(ctx context.Context) ([]model.IndexQuote, error)
	Detail(ctx context.Context, ticker string) (pipeline.Detail, bool)
	Source() string
}

const defaultMoversLimit = 10

// Handler serves the pipeline. Full refreshes run on ctx, not on the request context.
type Handler struct {
	pipeline Pipeline
	ctx      context.Context
	logger   *logrus.Logger
	now      func() time.Time
}

func NewHandler(ctx context.Context, p Pipeline, logger *logrus.Logger) *Handler {
	return &Handler{pipeline: p, ctx: ctx, logger: logger, now: time.Now}
}

// statusResponse is the status indicator payload.
type statusResponse struct {
	model.RefreshStatus
	Progress     int    `json:"progress"`
	Total        int    `json:"total"`
	Message      string `json:"message"`
	IsRefreshing bool   `json:"isRefreshing"`
	MarketOpen   bool   `json:"marketOpen"`
	Source       string `json:"source"`
}

func (h *Handler) status() statusResponse {
	st := h.pipeline.Status()
	return statusResponse{
		RefreshStatus: st,
		Progress:      st.Progress(),
		Total:         st.TotalStocks,
		Message:       h.pipeline.StatusText(),
		IsRefreshing:  st.IsLoading,
		MarketOpen:    market.IsOpen(h.now()),
		Source:        h.pipeline.Source(),
	}
}

// Refresh starts a full refresh in the background and answers immediately.
func (h *Handler) Refresh(c *gin.Context) {
	go func() {
		if err := h.pipeline.RefreshAll(h.ctx); err != nil {
			h.logger.WithError(err).Warn("full refresh incomplete")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh started"})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

func (h *Handler) Tree(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sectors": h.pipeline.Tree(),
		"status":  h.status(),
	})
}

func (h *Handler) Indices(c *gin.Context) {
	indices, err := h.pipeline.Indices(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Debug("index trackers unavailable")
	}
	c.JSON(http.StatusOK, indices)
}

func (h *Handler) Movers(c *gin.Context) {
	gainers := c.DefaultQuery("type", "gainers") != "losers"
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultMoversLimit)))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, h.pipeline.TopMovers(gainers, limit))
}

func (h *Handler) Quote(c *gin.Context) {
	ticker := tickerParam(c)
	q, ok := h.pipeline.FetchOne(c.Request.Context(), ticker)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote for " + ticker})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) Chart(c *gin.Context) {
	ticker := tickerParam(c)
	period := model.ParsePeriod(strings.ToUpper(c.DefaultQuery("period", string(model.Period1M))))
	series, ok := h.pipeline.FetchChart(c.Request.Context(), ticker, period)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no chart for " + ticker})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticker": ticker,
		"period": period,
		"points": series,
	})
}

func (h *Handler) Detail(c *gin.Context) {
	ticker := tickerParam(c)
	d, ok := h.pipeline.Detail(c.Request.Context(), ticker)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no detail for " + ticker})
		return
	}
	c.JSON(http.StatusOK, d)
}

func tickerParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
}
