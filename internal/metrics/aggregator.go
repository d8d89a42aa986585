// Package metrics reduces windows of query log records into read-only
// snapshots. Snapshots are pure functions of their input: nothing in this
// package accumulates state across calls.
package metrics

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"sqlpilot/internal/domain"
)

// UnknownBucket is the group key for records missing a user or category.
const UnknownBucket = "unknown"

// LatencyStats summarises one latency dimension over a window, in seconds.
// Count is the number of records that contributed; records with a missing
// or inverted timestamp pair are excluded here but still counted in totals.
type LatencyStats struct {
	Mean  float64 `json:"mean_s"`
	P95   float64 `json:"p95_s"`
	Count int     `json:"count"`
}

// DataQuality counts records that were skipped for individual statistics.
// It is reported alongside the snapshot rather than silently discarded.
type DataQuality struct {
	MissingAskedAt    int `json:"missing_asked_at"` // excluded from the window entirely
	SkippedGeneration int `json:"skipped_generation"`
	SkippedExecution  int `json:"skipped_execution"`
	SkippedEndToEnd   int `json:"skipped_end_to_end"`
	SkippedConfidence int `json:"skipped_confidence"`
}

// Total returns the number of per-statistic skips observed.
func (d DataQuality) Total() int {
	return d.MissingAskedAt + d.SkippedGeneration + d.SkippedExecution + d.SkippedEndToEnd + d.SkippedConfidence
}

// Snapshot is a derived aggregate over the window [Start, End).
type Snapshot struct {
	Start time.Time `json:"period_start"`
	End   time.Time `json:"period_end"`

	Total      int                   `json:"total_queries"`
	Successful int                   `json:"successful_queries"`
	Failed     int                   `json:"failed_queries"`
	ByStatus   map[domain.Status]int `json:"by_status"`
	ByUser     map[string]int        `json:"by_user"`
	ByCategory map[string]int        `json:"by_category"`

	// Latency dimensions; nil when no record in the window carried a
	// usable timestamp pair for the dimension.
	Generation *LatencyStats `json:"generation_latency,omitempty"` // generated minus asked
	Execution  *LatencyStats `json:"execution_latency,omitempty"`  // executed minus generated
	EndToEnd   *LatencyStats `json:"end_to_end_latency,omitempty"` // executed minus asked

	SuccessRate   float64  `json:"success_rate"`
	ErrorRate     float64  `json:"error_rate"`
	AvgConfidence *float64 `json:"avg_confidence,omitempty"`

	DataQuality DataQuality `json:"data_quality"`
}

// Aggregator computes snapshots from record collections.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// Snapshot reduces records to the aggregate for [start, end). Records whose
// asked-at timestamp is missing or outside the window are excluded; a
// malformed record is skipped only for the statistic it would corrupt.
func (a *Aggregator) Snapshot(records []domain.QueryRecord, start, end time.Time) *Snapshot {
	snap := &Snapshot{
		Start:      start,
		End:        end,
		ByStatus:   make(map[domain.Status]int),
		ByUser:     make(map[string]int),
		ByCategory: make(map[string]int),
	}

	var window []domain.QueryRecord
	for _, rec := range records {
		if rec.AskedAt == nil {
			snap.DataQuality.MissingAskedAt++
			a.logger.Debug("record missing asked-at, excluded from window", "record_id", rec.ID)
			continue
		}
		if rec.AskedAt.Before(start) || !rec.AskedAt.Before(end) {
			continue
		}
		window = append(window, rec)
	}

	var generation, execution, endToEnd []float64
	var confidences []float64

	for _, rec := range window {
		snap.Total++
		snap.ByStatus[rec.Status]++
		if rec.Status.Succeeded() {
			snap.Successful++
		}
		if rec.Failed() {
			snap.Failed++
		}
		snap.ByUser[bucketKey(rec.UserID)]++
		snap.ByCategory[bucketKey(rec.Category)]++

		if d, ok := elapsedSeconds(rec.AskedAt, rec.GeneratedAt); ok {
			generation = append(generation, d)
		} else if rec.GeneratedAt != nil {
			snap.DataQuality.SkippedGeneration++
			a.logger.Debug("inverted generation timestamps, record skipped for statistic", "record_id", rec.ID)
		}
		if d, ok := elapsedSeconds(rec.GeneratedAt, rec.ExecutedAt); ok {
			execution = append(execution, d)
		} else if rec.GeneratedAt != nil && rec.ExecutedAt != nil {
			snap.DataQuality.SkippedExecution++
			a.logger.Debug("inverted execution timestamps, record skipped for statistic", "record_id", rec.ID)
		}
		if d, ok := elapsedSeconds(rec.AskedAt, rec.ExecutedAt); ok {
			endToEnd = append(endToEnd, d)
		} else if rec.ExecutedAt != nil {
			snap.DataQuality.SkippedEndToEnd++
		}

		if rec.Confidence != nil {
			if c := *rec.Confidence; math.IsNaN(c) || math.IsInf(c, 0) {
				snap.DataQuality.SkippedConfidence++
				a.logger.Debug("non-finite confidence, record skipped for statistic", "record_id", rec.ID)
			} else {
				confidences = append(confidences, c)
			}
		}
	}

	snap.Generation = latencyStats(generation)
	snap.Execution = latencyStats(execution)
	snap.EndToEnd = latencyStats(endToEnd)

	if snap.Total > 0 {
		snap.SuccessRate = float64(snap.Successful) / float64(snap.Total)
		snap.ErrorRate = float64(snap.Failed) / float64(snap.Total)
	}
	if len(confidences) > 0 {
		avg := mean(confidences)
		snap.AvgConfidence = &avg
	}
	return snap
}

// SnapshotOutcomes is Snapshot over a batch result instead of persisted
// records.
func (a *Aggregator) SnapshotOutcomes(outcomes domain.BatchResult, start, end time.Time) *Snapshot {
	records := make([]domain.QueryRecord, 0, len(outcomes))
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		records = append(records, *out.Record())
	}
	return a.Snapshot(records, start, end)
}

// elapsedSeconds returns the non-negative elapsed time between two
// endpoints, or false when either endpoint is missing or the pair is
// inverted.
func elapsedSeconds(from, to *time.Time) (float64, bool) {
	if from == nil || to == nil {
		return 0, false
	}
	d := to.Sub(*from)
	if d < 0 {
		return 0, false
	}
	return d.Seconds(), true
}

func latencyStats(samples []float64) *LatencyStats {
	if len(samples) == 0 {
		return nil
	}
	return &LatencyStats{
		Mean:  mean(samples),
		P95:   percentile(samples, 95),
		Count: len(samples),
	}
}

func mean(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// percentile is nearest-rank over a sorted copy. The input is never
// mutated.
func percentile(samples []float64, p float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func bucketKey(v *string) string {
	if v == nil || *v == "" {
		return UnknownBucket
	}
	return *v
}
