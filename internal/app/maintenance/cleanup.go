// Package maintenance runs periodic housekeeping jobs on a cron schedule.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/smartpost/pkg/logger"
)

const (
	defaultMediaSpec  = "@every 5m"
	defaultJobTimeout = 2 * time.Minute
)

// MediaReclaimer frees storage held by expired media uploads.
type MediaReclaimer interface {
	ReclaimExpired(ctx context.Context) (int, error)
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// Cleaner coordinates background maintenance tasks such as reclaiming the disk space of
// expired media uploads.
type Cleaner struct {
	media      MediaReclaimer
	cron       *cron.Cron
	log        *zap.Logger
	jobs       []job
	jobTimeout time.Duration

	mediaSchedule string
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

// WithMediaSchedule overrides the cron specification for media reclamation.
func WithMediaSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.mediaSchedule = spec
		}
	}
}

// WithJobTimeout bounds a single scheduled job run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(cleaner *Cleaner) {
		if timeout > 0 {
			cleaner.jobTimeout = timeout
		}
	}
}

// WithJob registers an additional named job.
func WithJob(name, spec string, run func(ctx context.Context) error) Option {
	return func(cleaner *Cleaner) {
		if run != nil && spec != "" {
			cleaner.jobs = append(cleaner.jobs, job{name: name, spec: spec, run: run})
		}
	}
}

// NewCleaner constructs a Cleaner. A nil media reclaimer skips the media job.
func NewCleaner(media MediaReclaimer, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		media:         media,
		jobTimeout:    defaultJobTimeout,
		mediaSchedule: defaultMediaSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if cleaner.media != nil {
		cleaner.jobs = append([]job{{
			name: "media_reclaim",
			spec: cleaner.mediaSchedule,
			run:  cleaner.reclaimMedia,
		}}, cleaner.jobs...)
	}

	return cleaner
}

// Start registers every job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if len(c.jobs) == 0 {
		return nil
	}

	for _, j := range c.jobs {
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.jobTimeout)
			defer cancel()
			if err := j.run(ctx); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs {
		if err := j.run(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Cleaner) reclaimMedia(ctx context.Context) error {
	reclaimed, err := c.media.ReclaimExpired(ctx)
	if reclaimed > 0 {
		c.log.Info("reclaimed expired media", zap.Int("files", reclaimed))
	}
	return err
}
