package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"google.golang.org/grpc/status"
)

// scenarioMetric собирает длительность сценария целиком рядом с отдельными вызовами.
const scenarioMetric = "scenario"

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D97706"))

type series struct {
	samples []time.Duration
	codes   map[string]int64
	failed  int64
}

// recorder копит замеры из всех воркеров.
type recorder struct {
	mu     sync.Mutex
	series map[string]*series
}

func newRecorder() *recorder {
	return &recorder{series: make(map[string]*series)}
}

func (r *recorder) observe(name string, elapsed time.Duration, err error) {
	code := status.Code(err)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.series[name]
	if !ok {
		s = &series{codes: make(map[string]int64)}
		r.series[name] = s
	}
	s.samples = append(s.samples, elapsed)
	s.codes[code.String()]++
	if err != nil {
		s.failed++
	}
}

type latency struct {
	P50 float64 `json:"p50_ms"`
	P95 float64 `json:"p95_ms"`
	P99 float64 `json:"p99_ms"`
	Max float64 `json:"max_ms"`
}

type callStats struct {
	Count   int64            `json:"count"`
	Failed  int64            `json:"failed"`
	Codes   map[string]int64 `json:"codes"`
	Latency latency          `json:"latency"`
}

type report struct {
	StartedAt  time.Time            `json:"started_at"`
	Elapsed    float64              `json:"elapsed_seconds"`
	Throughput float64              `json:"scenarios_per_second"`
	Scenarios  callStats            `json:"scenarios"`
	Calls      map[string]callStats `json:"calls"`
}

func (r *recorder) report(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := report{
		StartedAt: startedAt.UTC(),
		Elapsed:   elapsed.Seconds(),
		Calls:     make(map[string]callStats, len(r.series)),
	}
	for name, s := range r.series {
		stats := s.stats()
		if name == scenarioMetric {
			out.Scenarios = stats
			continue
		}
		out.Calls[name] = stats
	}
	if elapsed > 0 {
		out.Throughput = float64(out.Scenarios.Count) / elapsed.Seconds()
	}
	return out
}

func (s *series) stats() callStats {
	sorted := append([]time.Duration(nil), s.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	codes := make(map[string]int64, len(s.codes))
	for code, n := range s.codes {
		codes[code] = n
	}
	return callStats{
		Count:  int64(len(sorted)),
		Failed: s.failed,
		Codes:  codes,
		Latency: latency{
			P50: millis(nearestRank(sorted, 50)),
			P95: millis(nearestRank(sorted, 95)),
			P99: millis(nearestRank(sorted, 99)),
			Max: millis(nearestRank(sorted, 100)),
		},
	}
}

// nearestRank возвращает p-й перцентиль отсортированной выборки методом ближайшего ранга.
func nearestRank(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func printSummary(w io.Writer, cfg config, r report) {
	fmt.Fprintln(w, titleStyle.Render("ordercore load test: "+cfg.scenario))
	fmt.Fprintf(w, "scenarios=%d failed=%d elapsed=%.2fs throughput=%.1f/s\n",
		r.Scenarios.Count, r.Scenarios.Failed, r.Elapsed, r.Throughput)

	names := make([]string, 0, len(r.Calls))
	for name := range r.Calls {
		names = append(names, name)
	}
	sort.Strings(names)

	calls := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("CALL", "COUNT", "FAILED", "P50 ms", "P95 ms", "P99 ms")
	for _, name := range append(names, scenarioMetric) {
		s := r.Scenarios
		if name != scenarioMetric {
			s = r.Calls[name]
		}
		calls.Row(name,
			fmt.Sprint(s.Count), fmt.Sprint(s.Failed),
			fmt.Sprintf("%.2f", s.Latency.P50),
			fmt.Sprintf("%.2f", s.Latency.P95),
			fmt.Sprintf("%.2f", s.Latency.P99))
	}
	fmt.Fprintln(w, calls.Render())
}

func writeReport(path string, r report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
