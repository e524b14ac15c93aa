package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fadmann/chat/internal/ratelimit"
	"github.com/fadmann/chat/internal/realtime"
	"github.com/fadmann/chat/pkg/logger"
)

const (
	defaultTypingSpec = "@every 2s"
	defaultPruneSpec  = "@every 5m"
)

// Cleaner coordinates background upkeep of in-memory chat state: expiring
// stale typing indicators and pruning idle rate windows.
type Cleaner struct {
	registry *realtime.Registry
	limiter  *ratelimit.Limiter
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	started  bool

	typingSchedule string
	pruneSchedule  string
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

// WithNow overrides the clock used for typing expiry.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTypingSchedule overrides the cron specification for the typing sweep.
func WithTypingSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.typingSchedule = spec
		}
	}
}

// WithPruneSchedule overrides the cron specification for rate window pruning.
func WithPruneSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.pruneSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// results in the corresponding job being skipped.
func NewCleaner(registry *realtime.Registry, limiter *ratelimit.Limiter, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		registry:       registry,
		limiter:        limiter,
		now:            time.Now,
		typingSchedule: defaultTypingSpec,
		pruneSchedule:  defaultPruneSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.registry != nil {
		jobs = append(jobs, job{name: "typing sweep", schedule: c.typingSchedule, run: c.sweepTyping})
	}
	if c.limiter != nil {
		jobs = append(jobs, job{name: "rate window prune", schedule: c.pruneSchedule, run: c.pruneWindows})
	}
	return jobs
}

// Start registers the jobs with the cron scheduler and launches it when at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		if _, err := c.cron.AddFunc(j.schedule, func() {
			if err := j.run(context.Background()); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	c.started = true
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil || !c.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled job sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, j.run(ctx))
	}
	return errs
}

func (c *Cleaner) sweepTyping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cleared := c.registry.SweepTyping(ctx, c.now()); cleared > 0 {
		c.log.Debug("expired typing indicators", zap.Int("count", cleared))
	}
	return nil
}

func (c *Cleaner) pruneWindows(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if removed := c.limiter.Prune(); removed > 0 {
		c.log.Debug("pruned idle rate windows", zap.Int("count", removed))
	}
	return nil
}
