package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(t *testing.T) *BacktestJob {
	t.Helper()
	job, err := NewBacktestJob("job-1", []string{"s1", "s2"}, []string{"600000", "000001"},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(100000),
		PositionSizing{Type: SizingPercent, Value: 95},
	)
	require.NoError(t, err)
	return job
}

func TestNewBacktestJobValidation(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	sizing := PositionSizing{Type: SizingPercent, Value: 95}

	_, err := NewBacktestJob("j", nil, []string{"600000"}, start, end, decimal.NewFromInt(1), sizing)
	assert.Error(t, err)

	_, err = NewBacktestJob("j", []string{"s1"}, nil, start, end, decimal.NewFromInt(1), sizing)
	assert.Error(t, err)

	_, err = NewBacktestJob("j", []string{"s1"}, []string{"600000"}, end, start, decimal.NewFromInt(1), sizing)
	assert.Error(t, err)

	_, err = NewBacktestJob("j", []string{"s1"}, []string{"600000"}, start, end, decimal.Zero, sizing)
	assert.Error(t, err)
}

func TestJobListsRoundTrip(t *testing.T) {
	job := newTestJob(t)

	assert.Equal(t, []string{"s1", "s2"}, job.StrategyIDList())
	assert.Equal(t, []string{"600000", "000001"}, job.InstrumentList())
	assert.Equal(t, PositionSizing{Type: SizingPercent, Value: 95}, job.SizingSpec())
}

func TestJobLifecycleTransitions(t *testing.T) {
	job := newTestJob(t)
	assert.Equal(t, JobStatusPending, job.Status)

	// PENDING 不能直接 Start
	assert.Error(t, job.Start(4))

	require.NoError(t, job.Enqueue())
	assert.Error(t, job.Enqueue())

	require.NoError(t, job.Start(4))
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)
}

func TestJobCounterInvariant(t *testing.T) {
	job := newTestJob(t)
	require.NoError(t, job.Enqueue())
	require.NoError(t, job.Start(3))

	require.NoError(t, job.RecordCombination(true))
	require.NoError(t, job.RecordCombination(false))
	assert.Equal(t, 2, job.Completed)
	assert.Equal(t, job.Completed, job.Successful+job.Failed)
	assert.InDelta(t, 66.666, job.ProgressPercent(), 0.001)

	require.NoError(t, job.RecordCombination(true))
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.FinishedAt)

	// 终态后计数器不可再推进
	assert.Error(t, job.RecordCombination(true))
}

func TestJobCompletesDespiteFailures(t *testing.T) {
	job := newTestJob(t)
	require.NoError(t, job.Enqueue())
	require.NoError(t, job.Start(2))

	require.NoError(t, job.RecordCombination(false))
	require.NoError(t, job.RecordCombination(false))

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Failed)
	assert.Zero(t, job.Successful)
}

func TestJobFailAndCancelIdempotent(t *testing.T) {
	job := newTestJob(t)
	require.NoError(t, job.Enqueue())
	require.NoError(t, job.Start(2))

	job.Fail("event bus unavailable")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "event bus unavailable", job.ErrorMessage)

	// 终态后 Cancel/Fail 均为 no-op
	job.Cancel()
	assert.Equal(t, JobStatusFailed, job.Status)
	job.Fail("other")
	assert.Equal(t, "event bus unavailable", job.ErrorMessage)
}

func TestJobCancelBeforeCompletion(t *testing.T) {
	job := newTestJob(t)
	require.NoError(t, job.Enqueue())
	require.NoError(t, job.Start(4))
	require.NoError(t, job.RecordCombination(true))

	job.Cancel()
	assert.Equal(t, JobStatusCancelled, job.Status)
	assert.Equal(t, 1, job.Completed)
	assert.True(t, job.Status.Terminal())
}
