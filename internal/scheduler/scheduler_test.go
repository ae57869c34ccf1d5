package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_RunsJobAndRecordsHistory(t *testing.T) {
	var calls int
	s := New(Config{}, func(ctx context.Context) error {
		calls++
		return nil
	}, func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, s.Trigger(JobPriceCrawl))
	assert.Equal(t, 1, calls)

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, JobPriceCrawl, history[0].JobID)
	assert.True(t, history[0].Success)
	assert.True(t, history[0].Triggered)
}

func TestTrigger_UnknownJobErrors(t *testing.T) {
	s := New(Config{}, func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })
	err := s.Trigger(JobID("unknown"))
	require.Error(t, err)
}

func TestFire_RecordsFailure(t *testing.T) {
	s := New(Config{}, func(ctx context.Context) error {
		return errors.New("boom")
	}, func(ctx context.Context) error { return nil })

	require.NoError(t, s.Trigger(JobPriceCrawl))
	history := s.History()
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Equal(t, "boom", history[0].Error)
}

func TestFire_DropsOverlappingFiringOfSameJob(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var wg sync.WaitGroup

	s := New(Config{}, func(ctx context.Context) error {
		close(entered)
		<-release
		return nil
	}, func(ctx context.Context) error { return nil })

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Trigger(JobPriceCrawl)
	}()

	<-entered
	status := s.Status()
	assert.True(t, status[JobPriceCrawl])

	// second firing while the first is in flight must be dropped, not queued
	require.NoError(t, s.Trigger(JobPriceCrawl))
	assert.Len(t, s.History(), 0, "the overlapping firing must be dropped before recording any result")

	close(release)
	wg.Wait()
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, s.History(), 1, "only the first firing's result is recorded")
}

func TestJobs_ListsBothJobsWithoutStarting(t *testing.T) {
	s := New(Config{PriceCrawlHour: 9, PriceCrawlMinute: 0, RedditCrawlHour: 10, RedditCrawlMinute: 0},
		func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })

	jobs := s.Jobs()
	require.Len(t, jobs, 2)

	byID := map[JobID]string{}
	for _, j := range jobs {
		byID[j.ID] = j.Spec
	}
	assert.Equal(t, "0 9 * * *", byID[JobPriceCrawl])
	assert.Equal(t, "0 10 * * *", byID[JobRedditCollection])
	assert.Empty(t, s.History(), "Jobs must not fire or start anything")
}

func TestHistory_IsBoundedBySize(t *testing.T) {
	s := New(Config{HistorySize: 2}, func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })
	require.NoError(t, s.Trigger(JobPriceCrawl))
	require.NoError(t, s.Trigger(JobPriceCrawl))
	require.NoError(t, s.Trigger(JobPriceCrawl))
	assert.Len(t, s.History(), 2)
}
