// Package report renders a completed run as a tabular text stream and a
// YAML stream, plus the exit-status summary lines.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/hammer/pkg/metrics"
	"gopkg.in/yaml.v3"
)

// RunInfo is the free-form header block the YAML schema calls <runinfo>:
// identifying details about this invocation that aren't per-stressor
// metrics.
type RunInfo struct {
	RunID     string    `yaml:"run-id"`
	StartedAt time.Time `yaml:"started-at"`
	Regime    string    `yaml:"regime"`
}

// MetricRow is one entry of the YAML schema's `metrics:` list.
type MetricRow struct {
	Stressor                string             `yaml:"stressor"`
	BogoOps                 uint64             `yaml:"bogo-ops"`
	BogoOpsPerSecondUsrSys  float64            `yaml:"bogo-ops-per-second-usr-sys-time"`
	BogoOpsPerSecondReal    float64            `yaml:"bogo-ops-per-second-real-time"`
	WallClockTime           float64            `yaml:"wall-clock-time"`
	UserTime                float64            `yaml:"user-time"`
	SystemTime              float64            `yaml:"system-time"`
	CPUUsagePerInstance     float64            `yaml:"cpu-usage-per-instance"`
	MaxRSS                  int64              `yaml:"max-rss"`
	Aux                     map[string]float64 `yaml:",inline"`
}

// Times is the YAML schema's `times:` block.
type Times struct {
	RunTime               float64 `yaml:"run-time"`
	AvailableCPUTime      float64 `yaml:"available-cpu-time"`
	UserTime              float64 `yaml:"user-time"`
	SystemTime            float64 `yaml:"system-time"`
	TotalTime             float64 `yaml:"total-time"`
	UserTimePercent       float64 `yaml:"user-time-percent"`
	SystemTimePercent     float64 `yaml:"system-time-percent"`
	TotalTimePercent      float64 `yaml:"total-time-percent"`
	LoadAverage1Minute    float64 `yaml:"load-average-1-minute"`
	LoadAverage5Minute    float64 `yaml:"load-average-5-minute"`
	LoadAverage15Minute   float64 `yaml:"load-average-15-minute"`
}

// Document is the full YAML report document.
type Document struct {
	RunInfo RunInfo     `yaml:"runinfo"`
	Metrics []MetricRow `yaml:"metrics"`
	Times   Times       `yaml:"times"`
}

// BuildRow turns one stressor's metrics.Aggregate into a YAML MetricRow.
// agg.Name is used as is; callers pass the already-munged stressor name
// (underscores to hyphens).
func BuildRow(agg metrics.Aggregate) MetricRow {
	row := MetricRow{
		Stressor:               agg.Name,
		BogoOps:                agg.CounterTotal,
		BogoOpsPerSecondUsrSys: agg.BogoRate,
		BogoOpsPerSecondReal:   agg.BogoRateRealTime,
		WallClockTime:          agg.RealTime,
		UserTime:               agg.UserTime,
		SystemTime:             agg.SystemTime,
		CPUUsagePerInstance:    agg.CPUUsagePercent,
		MaxRSS:                 agg.MaxRSS,
	}
	if len(agg.Aux) > 0 {
		row.Aux = make(map[string]float64, len(agg.Aux))
		for _, a := range agg.Aux {
			row.Aux[yamlify(a.Description)] = a.Value
		}
	}
	return row
}

// yamlify munges an aux metric's description into a YAML-key-safe form:
// lowercase, spaces to hyphens.
func yamlify(desc string) string {
	desc = strings.ToLower(strings.TrimSpace(desc))
	return strings.ReplaceAll(desc, " ", "-")
}

// WriteYAML marshals a Document with a leading `---` document marker and a
// trailing `...` end marker.
func WriteYAML(w io.Writer, doc Document) error {
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "...\n")
	return err
}

// WriteTable renders the tabular text stream: one row per stressor with
// its headline throughput and resource numbers. scientific selects %e over
// %f for the floating columns (the --sn switch).
func WriteTable(w io.Writer, rows []MetricRow, scientific bool) {
	verb := "%.2f"
	if scientific {
		verb = "%.2e"
	}
	rowFmt := "%s\t%d\t" + verb + "\t" + verb + "\t" + verb + "\t" + verb + "\t" + verb + "\t%d\n"

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "stressor\tbogo-ops\treal-time\tusr-time\tsys-time\tbogo-ops/s\tcpu-usage%\tmax-rss")
	for _, r := range rows {
		fmt.Fprintf(tw, rowFmt,
			r.Stressor, r.BogoOps, r.WallClockTime, r.UserTime, r.SystemTime,
			r.BogoOpsPerSecondReal, r.CPUUsagePerInstance, r.MaxRSS)
	}
	tw.Flush()
}

// InstanceRow is one per-instance line of the full (non "--metrics-brief")
// report: the brief report is rollup-only, the full one also shows each
// instance's own counter and duration.
type InstanceRow struct {
	Stressor string
	Index    int32
	PID      int32
	Counter  uint64
	Duration float64
	RunOK    bool
}

// WriteInstances renders the per-instance detail table shown when
// "--metrics-brief" is not set.
func WriteInstances(w io.Writer, rows []InstanceRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "stressor\tinstance\tpid\tbogo-ops\tduration\trun-ok")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f\t%t\n",
			r.Stressor, r.Index, r.PID, r.Counter, r.Duration, r.RunOK)
	}
	tw.Flush()
}

// Summary is the bucketed exit-status report: each bucket concatenates
// "name (count)" for every stressor with a nonzero count; skipped
// additionally includes fully-ignored stressors.
type Summary struct {
	Passed, Skipped, Failed, BadMetrics map[string]int
}

// NewSummary returns an empty Summary ready for accumulation.
func NewSummary() Summary {
	return Summary{
		Passed:     map[string]int{},
		Skipped:    map[string]int{},
		Failed:     map[string]int{},
		BadMetrics: map[string]int{},
	}
}

// WriteSummary prints the four bucket lines, one stressor per comma
// separated "name (count)" entry, with "name: 0" for empty buckets.
func WriteSummary(w io.Writer, s Summary) {
	writeBucket(w, "passed", s.Passed)
	writeBucket(w, "skipped", s.Skipped)
	writeBucket(w, "failed", s.Failed)
	writeBucket(w, "metrics untrustworthy", s.BadMetrics)
}

func writeBucket(w io.Writer, label string, counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintf(w, "%s: 0\n", label)
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		if counts[name] == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%d)", name, counts[name]))
	}
	if len(parts) == 0 {
		fmt.Fprintf(w, "%s: 0\n", label)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", label, strings.Join(parts, ", "))
}
