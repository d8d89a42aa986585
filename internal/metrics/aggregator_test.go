package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlpilot/internal/domain"
)

var (
	windowStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
)

func strPtr(s string) *string       { return &s }
func f64Ptr(f float64) *float64     { return &f }
func timePtr(t time.Time) *time.Time { return &t }

// record builds a well-formed success record asked at windowStart+offset
// with 1s generation latency and 2s end-to-end latency.
func record(offset time.Duration, status domain.Status) domain.QueryRecord {
	asked := windowStart.Add(offset)
	generated := asked.Add(1 * time.Second)
	executed := generated.Add(1 * time.Second)
	return domain.QueryRecord{
		Question:    "q",
		Status:      status,
		AskedAt:     &asked,
		GeneratedAt: &generated,
		ExecutedAt:  &executed,
	}
}

func TestAggregator_Snapshot_Counts(t *testing.T) {
	records := []domain.QueryRecord{
		record(time.Hour, domain.StatusSuccess),
		record(2*time.Hour, domain.StatusSuccess),
		record(3*time.Hour, domain.StatusRefinedSuccess),
		record(4*time.Hour, domain.StatusFailed),
		record(5*time.Hour, domain.StatusError),
	}
	records[0].UserID = strPtr("alice")
	records[1].UserID = strPtr("alice")
	records[2].UserID = strPtr("bob")
	records[0].Category = strPtr("finance")

	snap := NewAggregator(nil).Snapshot(records, windowStart, windowEnd)

	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 3, snap.Successful)
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, 2, snap.ByStatus[domain.StatusSuccess])
	assert.Equal(t, 1, snap.ByStatus[domain.StatusRefinedSuccess])
	assert.Equal(t, 1, snap.ByStatus[domain.StatusFailed])
	assert.Equal(t, 1, snap.ByStatus[domain.StatusError])

	assert.Equal(t, 2, snap.ByUser["alice"])
	assert.Equal(t, 1, snap.ByUser["bob"])
	assert.Equal(t, 2, snap.ByUser[UnknownBucket], "missing users group under unknown")
	assert.Equal(t, 1, snap.ByCategory["finance"])
	assert.Equal(t, 4, snap.ByCategory[UnknownBucket])

	assert.InDelta(t, 0.6, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 0.4, snap.ErrorRate, 1e-9)
}

func TestAggregator_Snapshot_EmptyWindow(t *testing.T) {
	snap := NewAggregator(nil).Snapshot(nil, windowStart, windowEnd)

	assert.Equal(t, 0, snap.Total)
	assert.Equal(t, float64(0), snap.SuccessRate, "success rate is 0, never NaN")
	assert.Equal(t, float64(0), snap.ErrorRate)
	assert.Nil(t, snap.Generation)
	assert.Nil(t, snap.Execution)
	assert.Nil(t, snap.EndToEnd)
	assert.Nil(t, snap.AvgConfidence)
}

func TestAggregator_Snapshot_WindowBounds(t *testing.T) {
	records := []domain.QueryRecord{
		record(-time.Minute, domain.StatusSuccess), // before start
		record(0, domain.StatusSuccess),            // at start, included
		record(6*24*time.Hour, domain.StatusSuccess),
	}
	atEnd := record(0, domain.StatusSuccess)
	atEnd.AskedAt = timePtr(windowEnd) // half-open interval excludes end
	records = append(records, atEnd)

	snap := NewAggregator(nil).Snapshot(records, windowStart, windowEnd)
	assert.Equal(t, 2, snap.Total)
}

func TestAggregator_Snapshot_Latencies(t *testing.T) {
	// 1s, 2s, 3s generation latency.
	records := make([]domain.QueryRecord, 0, 3)
	for i := 1; i <= 3; i++ {
		asked := windowStart.Add(time.Duration(i) * time.Hour)
		generated := asked.Add(time.Duration(i) * time.Second)
		executed := generated.Add(time.Second)
		records = append(records, domain.QueryRecord{
			Status:      domain.StatusSuccess,
			AskedAt:     &asked,
			GeneratedAt: &generated,
			ExecutedAt:  &executed,
		})
	}

	snap := NewAggregator(nil).Snapshot(records, windowStart, windowEnd)

	require.NotNil(t, snap.Generation)
	assert.Equal(t, 3, snap.Generation.Count)
	assert.InDelta(t, 2.0, snap.Generation.Mean, 1e-9)
	assert.InDelta(t, 3.0, snap.Generation.P95, 1e-9)

	require.NotNil(t, snap.Execution)
	assert.InDelta(t, 1.0, snap.Execution.Mean, 1e-9)

	require.NotNil(t, snap.EndToEnd)
	assert.InDelta(t, 3.0, snap.EndToEnd.Mean, 1e-9)
}

func TestAggregator_Snapshot_SkipsBadTimestampsButCountsRecord(t *testing.T) {
	good := record(time.Hour, domain.StatusSuccess)

	// Generation pair inverted: generated before asked.
	inverted := record(2*time.Hour, domain.StatusSuccess)
	inverted.GeneratedAt = timePtr(inverted.AskedAt.Add(-time.Second))
	inverted.ExecutedAt = nil

	// Never executed: missing pair, not a data-quality event.
	unexecuted := record(3*time.Hour, domain.StatusError)
	unexecuted.GeneratedAt = nil
	unexecuted.ExecutedAt = nil

	snap := NewAggregator(nil).Snapshot(
		[]domain.QueryRecord{good, inverted, unexecuted}, windowStart, windowEnd)

	assert.Equal(t, 3, snap.Total, "bad-timestamp records still count in totals")
	require.NotNil(t, snap.Generation)
	assert.Equal(t, 1, snap.Generation.Count)
	require.NotNil(t, snap.Execution)
	assert.Equal(t, 1, snap.Execution.Count)
	assert.Equal(t, 1, snap.DataQuality.SkippedGeneration)
	assert.Equal(t, 0, snap.DataQuality.SkippedExecution)
}

func TestAggregator_Snapshot_MissingAskedAtExcluded(t *testing.T) {
	noAsked := domain.QueryRecord{Status: domain.StatusSuccess}
	good := record(time.Hour, domain.StatusSuccess)

	snap := NewAggregator(nil).Snapshot(
		[]domain.QueryRecord{noAsked, good}, windowStart, windowEnd)

	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.DataQuality.MissingAskedAt)
	assert.Equal(t, 1, snap.DataQuality.Total())
}

func TestAggregator_Snapshot_Confidence(t *testing.T) {
	a := record(time.Hour, domain.StatusRefinedSuccess)
	a.Confidence = f64Ptr(0.8)
	b := record(2*time.Hour, domain.StatusRefinedSuccess)
	b.Confidence = f64Ptr(0.6)
	c := record(3*time.Hour, domain.StatusSuccess) // no confidence

	snap := NewAggregator(nil).Snapshot(
		[]domain.QueryRecord{a, b, c}, windowStart, windowEnd)

	require.NotNil(t, snap.AvgConfidence)
	assert.InDelta(t, 0.7, *snap.AvgConfidence, 1e-9)

	t.Run("absent_when_none_present", func(t *testing.T) {
		snap := NewAggregator(nil).Snapshot(
			[]domain.QueryRecord{c}, windowStart, windowEnd)
		assert.Nil(t, snap.AvgConfidence)
	})
}

func TestAggregator_SnapshotOutcomes(t *testing.T) {
	asked := windowStart.Add(time.Hour)
	generated := asked.Add(time.Second)
	executed := generated.Add(time.Second)
	sqlText := "SELECT 1"

	outcomes := domain.BatchResult{
		{
			Question:    "q",
			InitialSQL:  &sqlText,
			FinalSQL:    &sqlText,
			Status:      domain.StatusSuccess,
			Rows:        []domain.Row{{"count": int64(1)}},
			AskedAt:     asked,
			GeneratedAt: &generated,
			ExecutedAt:  &executed,
		},
		nil, // tolerated
	}

	snap := NewAggregator(nil).SnapshotOutcomes(outcomes, windowStart, windowEnd)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.Successful)
}

func TestPercentile(t *testing.T) {
	samples := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 5.0, percentile(samples, 95))
	assert.Equal(t, 3.0, percentile(samples, 50))
	assert.Equal(t, 1.0, percentile(samples, 1))
	// Input must not be reordered.
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, samples)
}
