// Package stats periodically snapshots record counts and pushes them, with
// a daily trend, to an external dashboard.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hangarhq/hangar/internal/app/services/features"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/app/system"
	"github.com/hangarhq/hangar/internal/httputil"
	"github.com/hangarhq/hangar/internal/logging"
)

const (
	statTypeFeatures = "features_count"
	trendDays        = 14
)

// Config configures the reporter.
type Config struct {
	// Schedule is a cron expression; defaults to daily at midnight.
	Schedule string `yaml:"schedule" env:"STATS_SCHEDULE"`
	// DashboardURL receives count snapshots when set.
	DashboardURL string `yaml:"dashboard_url" env:"STATS_DASHBOARD_URL"`
	DashboardKey string `yaml:"dashboard_key" env:"STATS_DASHBOARD_KEY"`
}

// Reporter is a lifecycle-managed job counting tracker features.
type Reporter struct {
	cfg       Config
	features  *features.Service
	stats     storage.StatsStore
	dashboard *httputil.ServiceClient
	logger    *logging.Logger
	cron      *cron.Cron
	clock     func() time.Time
}

var _ system.Service = (*Reporter)(nil)

// NewReporter creates the stats reporter. The dashboard push is skipped
// when no dashboard URL is configured; snapshots are still recorded.
func NewReporter(cfg Config, featureSvc *features.Service, stats storage.StatsStore, logger *logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Reporter{
		cfg:      cfg,
		features: featureSvc,
		stats:    stats,
		logger:   logger,
		cron:     cron.New(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.DashboardURL != "" {
		r.dashboard = httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL: cfg.DashboardURL,
			APIKey:  cfg.DashboardKey,
		})
	}
	return r
}

func (r *Reporter) Name() string { return "stats-reporter" }

// Start schedules the job and runs one collection immediately so a fresh
// deployment reports without waiting a full period.
func (r *Reporter) Start(ctx context.Context) error {
	schedule := r.cfg.Schedule
	if schedule == "" {
		schedule = "@daily"
	}

	if _, err := r.cron.AddFunc(schedule, func() { r.collect(context.Background()) }); err != nil {
		return fmt.Errorf("schedule stats job: %w", err)
	}
	r.cron.Start()

	go r.collect(ctx)

	r.logger.WithField("schedule", schedule).Info("stats reporter started")
	return nil
}

func (r *Reporter) Stop(ctx context.Context) error {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *Reporter) collect(ctx context.Context) {
	count, err := r.features.Count(ctx)
	if err != nil {
		r.logger.WithError(err).Error("stats collection failed")
		return
	}

	now := r.clock().Truncate(time.Minute)
	snapshot := storage.StatSnapshot{Type: statTypeFeatures, Date: now, Count: count}
	if err := r.stats.RecordStat(ctx, snapshot); err != nil {
		r.logger.WithError(err).Error("stats snapshot persist failed")
		return
	}

	r.logger.WithFields(map[string]interface{}{
		"type":  statTypeFeatures,
		"count": count,
	}).Info("stats snapshot recorded")

	if r.dashboard == nil {
		return
	}
	if err := r.push(ctx, count, now); err != nil {
		r.logger.WithError(err).Warn("stats dashboard push failed")
	}
}

type dashboardItem struct {
	Value int64  `json:"value"`
	Text  string `json:"text"`
}

type dashboardPayload struct {
	Item  dashboardItem `json:"item"`
	Daily []int64       `json:"daily"`
}

// push sends the current total plus the per-day increments over the trend
// window, oldest first.
func (r *Reporter) push(ctx context.Context, count int64, now time.Time) error {
	since := now.AddDate(0, 0, -trendDays)
	history, err := r.stats.ListStats(ctx, statTypeFeatures, since)
	if err != nil {
		return fmt.Errorf("load stats history: %w", err)
	}

	daily := make([]int64, 0, len(history))
	previous := int64(0)
	for _, snapshot := range history {
		daily = append(daily, snapshot.Count-previous)
		previous = snapshot.Count
	}

	payload := dashboardPayload{
		Item:  dashboardItem{Value: count, Text: "today"},
		Daily: daily,
	}

	resp, err := r.dashboard.Post(ctx, "", payload)
	if err != nil {
		return fmt.Errorf("post dashboard payload: %w", err)
	}
	return httputil.DecodeResponse(resp, nil)
}
