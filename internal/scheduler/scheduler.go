package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"MarketHeatmap/internal/market"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/notifier"
	"MarketHeatmap/internal/tree"
)

// Pipeline is the part of the refresh pipeline driven by cron and chat commands.
type Pipeline interface {
	Refresh(ctx context.Context) error
	RefreshAll(ctx context.Context) error
	Status() model.RefreshStatus
	StatusText() string
	TopMovers(gainers bool, limit int) []tree.Stock
	FetchOne(ctx context.Context, ticker string) (model.Quote, bool)
	Indices(ctx context.Context) ([]model.IndexQuote, error)
}

// MoversLimit is how many gainers and losers a movers reply lists.
const MoversLimit = 10

// Scheduler manages the periodic refresh.
type Scheduler struct {
	Cron            *cron.Cron
	Pipeline        Pipeline
	Logger          *logrus.Logger
	MarketHoursOnly bool
	Now             func() time.Time
	Ctx             context.Context
}

// NewScheduler creates a new Scheduler. Overlapping runs of the refresh job are skipped.
func NewScheduler(ctx context.Context, p Pipeline, logger *logrus.Logger, marketHoursOnly bool) *Scheduler {
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		Pipeline:        p,
		Logger:          logger,
		MarketHoursOnly: marketHoursOnly,
		Now:             time.Now,
		Ctx:             ctx,
	}
}

// Register adds the periodic refresh task.
func (s *Scheduler) Register(refreshCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

// RunNow runs a full refresh immediately (start-up, manual trigger).
func (s *Scheduler) RunNow() {
	if err := s.Pipeline.RefreshAll(s.Ctx); err != nil {
		s.Logger.WithError(err).Warn("full refresh incomplete")
	}
}

func (s *Scheduler) refreshTask() {
	// Outside trading hours prices do not move; the first cycle still runs so the map is filled.
	if s.MarketHoursOnly && !market.IsOpen(s.Now()) && s.Pipeline.Status().Generation > 0 {
		s.Logger.Debug("market closed, skipping refresh")
		return
	}
	if err := s.Pipeline.Refresh(s.Ctx); err != nil {
		s.Logger.WithError(err).Warn("scheduled refresh incomplete")
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch strings.ToLower(fields[0]) {
	case "/status":
		indices, _ := s.Pipeline.Indices(s.Ctx)
		return notifier.FormatStatus(s.Pipeline.Status(), s.Pipeline.StatusText(), indices, market.IsOpen(s.Now()))
	case "/refresh":
		go s.RunNow()
		return "🔄 Full refresh started"
	case "/movers":
		return notifier.FormatMovers(s.Pipeline.TopMovers(true, MoversLimit), s.Pipeline.TopMovers(false, MoversLimit))
	case "/quote":
		if len(fields) < 2 {
			return "Usage: /quote TICKER"
		}
		ticker := strings.ToUpper(fields[1])
		q, ok := s.Pipeline.FetchOne(s.Ctx, ticker)
		if !ok {
			return fmt.Sprintf("No data for %s", ticker)
		}
		return notifier.FormatQuote(q)
	default:
		return helpText
	}
}

const helpText = "Available commands:\n• /status\n• /refresh\n• /movers\n• /quote TICKER"
