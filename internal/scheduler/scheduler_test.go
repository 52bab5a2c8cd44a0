package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func nopHandler(ctx context.Context) error { return nil }

func statusFor(s *Scheduler, name string) *JobStatus {
	for _, st := range s.JobStatuses() {
		if st.Name == name {
			return &st
		}
	}
	return nil
}

func TestRegisterJobValidation(t *testing.T) {
	s := New(0, arbor.NewLogger())

	err := s.RegisterJob("bad", "not-a-cron", "", nopHandler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")

	require.Error(t, s.RegisterJob("empty", "", "", nopHandler))

	require.NoError(t, s.RegisterJob("site-scrape", "*/5 * * * *", "scrape pass", nopHandler))
	err = s.RegisterJob("site-scrape", "*/10 * * * *", "", nopHandler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestTriggerJob(t *testing.T) {
	s := New(0, arbor.NewLogger())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.RegisterJob("tick", "@every 1h", "one tick", func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))

	assert.EqualError(t, s.TriggerJob("ghost"), "job ghost not found")

	require.NoError(t, s.TriggerJob("tick"))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered job never ran")
	}
	require.Eventually(t, func() bool {
		st := statusFor(s, "tick")
		return st != nil && !st.IsRunning && st.LastRun != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	s := New(0, arbor.NewLogger())
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.RegisterJob("slow", "@every 1h", "", func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}))

	go s.executeJob("slow")
	<-started

	// a tick landing mid-run is dropped, and a manual trigger is rejected
	s.executeJob("slow")
	assert.EqualError(t, s.TriggerJob("slow"), "job slow is already running")

	close(release)
	require.Eventually(t, func() bool {
		st := statusFor(s, "slow")
		return st != nil && !st.IsRunning
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestJobPanicIsRecovered(t *testing.T) {
	s := New(0, arbor.NewLogger())
	require.NoError(t, s.RegisterJob("explode", "@every 1h", "", func(ctx context.Context) error {
		panic("boom")
	}))

	s.executeJob("explode")

	st := statusFor(s, "explode")
	require.NotNil(t, st)
	assert.False(t, st.IsRunning)
	assert.Equal(t, "panic: boom", st.LastError)

	// the panic path resets the running flag, so the job stays triggerable
	require.NoError(t, s.TriggerJob("explode"))
	require.Eventually(t, func() bool {
		st := statusFor(s, "explode")
		return st != nil && !st.IsRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCatchupWindow(t *testing.T) {
	s := New(2, arbor.NewLogger())
	require.NoError(t, s.RegisterJob("hourly", "@every 1h", "", nopHandler))
	require.NoError(t, s.RegisterJob("rare", "@every 100h", "", nopHandler))
	assert.Equal(t, []string{"hourly"}, s.catchupNames())

	off := New(0, arbor.NewLogger())
	require.NoError(t, off.RegisterJob("hourly", "@every 1h", "", nopHandler))
	assert.Nil(t, off.catchupNames())
}

func TestStartFiresCatchupRuns(t *testing.T) {
	s := New(2, arbor.NewLogger())
	ran := make(chan string, 2)
	require.NoError(t, s.RegisterJob("hourly", "@every 1h", "", func(ctx context.Context) error {
		ran <- "hourly"
		return nil
	}))
	require.NoError(t, s.RegisterJob("rare", "@every 100h", "", func(ctx context.Context) error {
		ran <- "rare"
		return nil
	}))
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case name := <-ran:
		assert.Equal(t, "hourly", name)
	case <-time.After(2 * time.Second):
		t.Fatal("catchup run never fired")
	}
	// the 100h schedule had no tick inside the window
	select {
	case name := <-ran:
		t.Fatalf("unexpected catchup run for %s", name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestJobStatuses(t *testing.T) {
	s := New(0, arbor.NewLogger())
	require.NoError(t, s.RegisterJob("site-scrape", "*/5 * * * *", "site scrape pass", nopHandler))
	require.NoError(t, s.RegisterJob("webhook-sweep", "0 * * * *", "expire stale webhooks", nopHandler))

	require.NoError(t, s.Start())
	defer s.Stop()

	require.Len(t, s.JobStatuses(), 2)

	st := statusFor(s, "site-scrape")
	require.NotNil(t, st)
	assert.Equal(t, "*/5 * * * *", st.Schedule)
	assert.Equal(t, "site scrape pass", st.Description)
	assert.True(t, st.Enabled)
	assert.False(t, st.IsRunning)
	assert.Nil(t, st.LastRun)
	require.NotNil(t, st.NextRun)
	assert.False(t, st.NextRun.IsZero())
	assert.Empty(t, st.LastError)
}

func TestStartStop(t *testing.T) {
	s := New(0, arbor.NewLogger())
	started := make(chan struct{})
	require.NoError(t, s.RegisterJob("blocker", "@every 1h", "", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	require.NoError(t, s.Start())
	assert.EqualError(t, s.Start(), "scheduler already running")

	require.NoError(t, s.TriggerJob("blocker"))
	<-started

	// Stop cancels the handler context; the interrupted run settles as failed
	s.Stop()
	require.Eventually(t, func() bool {
		st := statusFor(s, "blocker")
		return st != nil && !st.IsRunning && st.LastError == "context canceled"
	}, 2*time.Second, 10*time.Millisecond)

	// stopping again is a no-op
	s.Stop()
}
