package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	err   error
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJobRejectsBadSpecAndDuplicates(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "reconcile"}
	require.Error(t, s.AddJob(job, "every tuesday"))
	require.NoError(t, s.AddJob(job, "*/10 * * * *"))
	require.Error(t, s.AddJob(job, "0 * * * *"))

	_, ok := s.Next("missing")
	require.False(t, ok)
	s.Start(context.Background())
	defer s.Stop()
	next, ok := s.Next("reconcile")
	require.True(t, ok)
	require.Zero(t, next.Minute()%10)
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{})}
	run := s.wrap(job, "* * * * *")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool {
		job.mu.Lock()
		defer job.mu.Unlock()
		return job.calls == 1
	}, time.Second, time.Millisecond)
	run()
	close(job.block)
	<-done
	require.Equal(t, 1, job.calls)
}

func TestRunOnceReturnsJobError(t *testing.T) {
	require.Error(t, RunOnce(context.Background(), &countingJob{name: "x", err: errors.New("boom")}))
	require.NoError(t, RunOnce(context.Background(), &countingJob{name: "y"}))
}

type deadlineJob struct {
	got chan bool
}

func (j *deadlineJob) Name() string { return "deadline" }

func (j *deadlineJob) Run(ctx context.Context) error {
	_, ok := ctx.Deadline()
	j.got <- ok
	return nil
}

func TestWrapAppliesRunTimeout(t *testing.T) {
	job := &deadlineJob{got: make(chan bool, 2)}
	NewCronScheduler(WithRunTimeout(time.Minute)).wrap(job, "* * * * *")()
	require.True(t, <-job.got)

	NewCronScheduler().wrap(job, "* * * * *")()
	require.False(t, <-job.got)
}
