package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/observability"
)

// Refresher is implemented by the service layer to run one pass of the fetch pipeline.
// Used by Warmer to avoid a circular dependency on the service package.
type Refresher interface {
	Refresh(ctx context.Context) models.Snapshot
}

// Warmer keeps the cache populated by re-running the pipeline on a timer, independent of API traffic.
type Warmer struct {
	refresher Refresher
	logger    *zap.Logger
	timeout   time.Duration

	mu      sync.Mutex
	lastRun time.Time
	cron    *cron.Cron
}

// NewWarmer creates a Warmer. timeout is the deadline set on each pass's context; zero means 60s.
// Upstream fetches are bounded by the client timeouts, not by this deadline.
func NewWarmer(refresher Refresher, logger *zap.Logger, timeout time.Duration) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Warmer{refresher: refresher, logger: logger, timeout: timeout}
}

// Warm runs a single refresh pass and reports how many sources came back degraded.
func (w *Warmer) Warm(ctx context.Context) int {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	snap := w.refresher.Refresh(ctx)
	degraded := countDegraded(snap)

	duration := time.Since(start).Seconds()
	observability.RefreshDurationSeconds.Observe(duration)
	outcome := "ok"
	if degraded > 0 {
		outcome = "degraded"
	}
	observability.RefreshRunsTotal.WithLabelValues(outcome).Inc()

	w.mu.Lock()
	w.lastRun = start
	w.mu.Unlock()

	w.logger.Info("refresh complete",
		zap.Int("detections", len(snap.Detections.Value)),
		zap.Int("degraded_sources", degraded),
		zap.Float64("duration_seconds", duration))
	return degraded
}

// Start runs an initial Warm, then schedules Warm every interval until Stop or ctx is done.
// A pass still running when the next one is due is skipped.
func (w *Warmer) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}
	w.Warm(ctx)

	logger := cronLogger{w.logger.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc("@every "+interval.String(), func() { w.Warm(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	w.mu.Lock()
	w.cron = c
	w.mu.Unlock()
	c.Start()
	w.logger.Info("refresh scheduler started", zap.Duration("interval", interval))

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (w *Warmer) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	w.logger.Info("refresh scheduler stopped")
}

// LastRun returns when the most recent pass started; zero before the first.
func (w *Warmer) LastRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}

func countDegraded(s models.Snapshot) int {
	n := 0
	for _, ok := range []bool{s.Detections.IsOK(), s.Wind.IsOK(), s.AirQuality.IsOK()} {
		if !ok {
			n++
		}
	}
	return n
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
