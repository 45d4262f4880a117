package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fupan/internal/importer"
	"fupan/internal/journal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingScanner struct {
	calls atomic.Int32
}

func (s *countingScanner) ScanOnce(context.Context) ([]importer.FileReport, error) {
	s.calls.Add(1)
	return nil, nil
}

type countingSummarizer struct {
	calls atomic.Int32
}

func (s *countingSummarizer) DailySummary(_ context.Context, date string) (journal.DailySummary, error) {
	s.calls.Add(1)
	return journal.DailySummary{Date: date}, nil
}

func TestRunScansOnStart(t *testing.T) {
	scanner := &countingScanner{}
	summarizer := &countingSummarizer{}
	s := New("@hourly", 18, true, scanner, summarizer)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), scanner.calls.Load())
	assert.Equal(t, int32(0), summarizer.calls.Load())
}

func TestRunRejectsBadCronSpec(t *testing.T) {
	s := New("not a cron spec", 18, false, &countingScanner{}, &countingSummarizer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestRunWithoutJobsStopsOnCancel(t *testing.T) {
	s := New("", 18, false, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
