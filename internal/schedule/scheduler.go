package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is one unit of maintenance work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Option func(*CronScheduler)

// WithRunTimeout bounds every scheduled run. Zero leaves runs unbounded.
func WithRunTimeout(d time.Duration) Option {
	return func(c *CronScheduler) {
		c.runTimeout = d
	}
}

// CronScheduler runs jobs on five-field cron specs. A run that would
// overlap the previous run of the same job is skipped.
type CronScheduler struct {
	cron       *cron.Cron
	runTimeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler(opts ...Option) *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := job.Name()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	id, err := c.cron.AddFunc(spec, c.wrap(job, spec))
	if err != nil {
		return fmt.Errorf("schedule job %s with %q: %w", name, spec, err)
	}
	c.entries[name] = id
	logutil.GetLogger(context.Background()).Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Next reports when the named job fires next. ok is false for unknown jobs
// or before Start.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	id, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := c.cron.Entry(id).Next
	return next, !next.IsZero()
}

// Start runs jobs with ctx as their parent until Stop.
func (c *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		c.mu.Lock()
		c.ctx = ctx
		c.mu.Unlock()
	}
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) runContext() (context.Context, context.CancelFunc) {
	c.mu.Lock()
	parent := c.ctx
	c.mu.Unlock()
	if c.runTimeout > 0 {
		return context.WithTimeout(parent, c.runTimeout)
	}
	return context.WithCancel(parent)
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(context.Background()).Info("previous run still active, skipping",
				zap.String("job", job.Name()), zap.String("spec", spec))
			return
		}
		defer running.Store(false)
		ctx, cancel := c.runContext()
		defer cancel()
		_ = RunOnce(ctx, job)
	}
}

// RunOnce executes job now and logs its outcome and duration.
func RunOnce(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	fields := []zap.Field{zap.String("job", job.Name()), zap.Duration("duration", time.Since(start))}
	if err != nil {
		logutil.GetLogger(ctx).Error("job failed", append(fields, zap.Error(err))...)
		return err
	}
	logutil.GetLogger(ctx).Info("job done", fields...)
	return nil
}
