package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/get2knowme/internal/store"
	"github.com/charlesng35/get2knowme/pkg/logger"
	"github.com/charlesng35/get2knowme/pkg/metrics"
)

const (
	defaultSweepSpec    = "@every 1m"
	defaultSweepTimeout = 30 * time.Second
)

// Sweeper deletes records whose expiry has passed.
type Sweeper interface {
	ExpireNow(ctx context.Context) (store.ExpiryStats, error)
}

// Cleaner runs the expiry sweep on a cron schedule so expired pending records
// and reset tokens do not linger between reads.
type Cleaner struct {
	sweepers []Sweeper
	cron     *cron.Cron
	log      *zap.Logger
	schedule string
	timeout  time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweeper registers a sweeper. It may be repeated.
func WithSweeper(s Sweeper) Option {
	return func(cleaner *Cleaner) {
		if s != nil {
			cleaner.sweepers = append(cleaner.sweepers, s)
		}
	}
}

// WithSchedule overrides the cron specification for the sweep.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithTimeout bounds a single sweep run.
func WithTimeout(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.timeout = d
		}
	}
}

// NewCleaner constructs a Cleaner. Without sweepers Start is a no-op.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		schedule: defaultSweepSpec,
		timeout:  defaultSweepTimeout,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the sweep with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if len(c.sweepers) == 0 {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.RunOnce(ctx); err != nil {
			c.log.Warn("expiry sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	c.log.Info("expiry sweep scheduled", zap.String("schedule", c.schedule))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every sweeper sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, sweeper := range c.sweepers {
		stats, err := sweeper.ExpireNow(ctx)
		recordPurged(stats)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if stats.Total() > 0 {
			c.log.Info("expired records purged",
				zap.Int64("confirmations", stats.Confirmations),
				zap.Int64("registrations", stats.Registrations),
				zap.Int64("reset_tokens", stats.ResetTokens),
			)
		}
	}

	return errs
}

func recordPurged(stats store.ExpiryStats) {
	metrics.ExpiredPurged.WithLabelValues("pending_confirmation").Add(float64(stats.Confirmations))
	metrics.ExpiredPurged.WithLabelValues("pending_registration").Add(float64(stats.Registrations))
	metrics.ExpiredPurged.WithLabelValues("password_reset").Add(float64(stats.ResetTokens))
}
