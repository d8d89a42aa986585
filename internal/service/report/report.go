// Package report collects windowed query log aggregates and renders the
// periodic operations report.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"sqlpilot/internal/domain"
	"sqlpilot/internal/metrics"
)

// listPageSize is the page size used when draining a window from the
// query log.
const listPageSize = 1000

// Service builds metrics reports from the query log.
type Service struct {
	repo      domain.QueryLogRepository
	agg       *metrics.Aggregator
	logger    *slog.Logger
	healthURL string
	client    *http.Client
}

// NewService creates a report Service backed by the query log repository.
func NewService(repo domain.QueryLogRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "report")
	return &Service{
		repo:   repo,
		agg:    metrics.NewAggregator(logger),
		logger: logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// SetHealthURL enables the uptime probe. When set, Generate pings the URL
// and includes an uptime line in the report.
func (s *Service) SetHealthURL(url string) {
	s.healthURL = url
}

// Collect drains the query log for [start, end) and reduces it to a
// snapshot. Records are fetched in pages so large windows do not load in
// one round trip.
func (s *Service) Collect(ctx context.Context, start, end time.Time) (*metrics.Snapshot, error) {
	filter := domain.RecordFilter{
		From: &start,
		To:   &end,
		Page: domain.PageRequest{MaxResults: listPageSize},
	}

	var records []domain.QueryRecord
	for {
		page, total, err := s.repo.ListWindow(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list query log window: %w", err)
		}
		records = append(records, page...)
		if len(page) == 0 || int64(len(records)) >= total {
			break
		}
		filter.Page.Offset += len(page)
	}

	s.logger.Debug("collected query log window",
		"records", len(records), "start", start, "end", end)
	return s.agg.Snapshot(records, start, end), nil
}

// Generate collects the window ending now and spanning periodDays, probes
// uptime when configured, and renders the text report.
func (s *Service) Generate(ctx context.Context, periodDays int) (string, error) {
	if periodDays <= 0 {
		periodDays = 7
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -periodDays)

	snap, err := s.Collect(ctx, start, end)
	if err != nil {
		return "", err
	}

	var uptime *float64
	if s.healthURL != "" {
		u := s.probeUptime(ctx)
		uptime = &u
	}
	return Format(snap, uptime), nil
}

// probeUptime pings the health endpoint. Any failure counts as down.
func (s *Service) probeUptime(ctx context.Context) float64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return 0
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("health probe failed", "url", s.healthURL, "error", err)
		return 0
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode == http.StatusOK {
		return 100
	}
	return 0
}

// Format renders a snapshot as the periodic text report. uptime is
// optional; pass nil to omit the line.
func Format(snap *metrics.Snapshot, uptime *float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Weekly API Metrics\n")
	fmt.Fprintf(&b, "Period: %s to %s\n\n",
		snap.Start.UTC().Format(time.RFC3339), snap.End.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "Usage:\n")
	fmt.Fprintf(&b, "  Total NL->SQL requests:   %d\n", snap.Total)
	fmt.Fprintf(&b, "  Active users:             %d\n", len(snap.ByUser))
	if len(snap.ByStatus) > 0 {
		fmt.Fprintf(&b, "  By status:\n")
		for _, st := range sortedStatuses(snap.ByStatus) {
			fmt.Fprintf(&b, "    %-22s %d\n", string(st)+":", snap.ByStatus[st])
		}
	}
	if len(snap.ByCategory) > 0 {
		fmt.Fprintf(&b, "  By category:\n")
		for _, cat := range sortedKeys(snap.ByCategory) {
			fmt.Fprintf(&b, "    %-22s %d\n", cat+":", snap.ByCategory[cat])
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Performance:\n")
	writeLatency(&b, "End-to-end", snap.EndToEnd)
	writeLatency(&b, "Generation", snap.Generation)
	writeLatency(&b, "Execution", snap.Execution)
	b.WriteString("\n")

	fmt.Fprintf(&b, "Quality & Reliability:\n")
	fmt.Fprintf(&b, "  Success rate:             %.2f%%\n", snap.SuccessRate*100)
	fmt.Fprintf(&b, "  Error rate:               %.2f%%\n", snap.ErrorRate*100)
	if snap.AvgConfidence != nil {
		fmt.Fprintf(&b, "  Avg. confidence:          %.2f\n", *snap.AvgConfidence)
	} else {
		fmt.Fprintf(&b, "  Avg. confidence:          N/A\n")
	}
	if uptime != nil {
		fmt.Fprintf(&b, "  API uptime:               %.1f%%\n", *uptime)
	}

	if skipped := snap.DataQuality.Total(); skipped > 0 || snap.DataQuality.MissingAskedAt > 0 {
		fmt.Fprintf(&b, "\nData quality:\n")
		if n := snap.DataQuality.MissingAskedAt; n > 0 {
			fmt.Fprintf(&b, "  Records missing asked-at:  %d\n", n)
		}
		if n := snap.DataQuality.SkippedGeneration; n > 0 {
			fmt.Fprintf(&b, "  Skipped generation pairs:  %d\n", n)
		}
		if n := snap.DataQuality.SkippedExecution; n > 0 {
			fmt.Fprintf(&b, "  Skipped execution pairs:   %d\n", n)
		}
		if n := snap.DataQuality.SkippedEndToEnd; n > 0 {
			fmt.Fprintf(&b, "  Skipped end-to-end pairs:  %d\n", n)
		}
		if n := snap.DataQuality.SkippedConfidence; n > 0 {
			fmt.Fprintf(&b, "  Skipped confidence values: %d\n", n)
		}
	}

	return b.String()
}

func writeLatency(b *strings.Builder, label string, st *metrics.LatencyStats) {
	if st == nil {
		fmt.Fprintf(b, "  %-12s avg (s):     N/A\n", label)
		return
	}
	fmt.Fprintf(b, "  %-12s avg (s):     %.2f  (p95 %.2f, n=%d)\n", label, st.Mean, st.P95, st.Count)
}

func sortedStatuses(m map[domain.Status]int) []domain.Status {
	keys := make([]domain.Status, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
