package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cuemby/hammer/pkg/metrics"
)

func TestBuildRowCopiesAux(t *testing.T) {
	agg := metrics.Aggregate{
		Name:         "cpu",
		CounterTotal: 1000,
		Aux:          []metrics.AuxMetric{{Description: "CPU Checksum", Value: 3.5}},
	}
	row := BuildRow(agg)
	if row.Stressor != "cpu" || row.BogoOps != 1000 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if got := row.Aux["cpu-checksum"]; got != 3.5 {
		t.Fatalf("expected yamlified aux key, got %v in %+v", got, row.Aux)
	}
}

func TestWriteYAMLHasDocumentMarkers(t *testing.T) {
	var buf bytes.Buffer
	doc := Document{RunInfo: RunInfo{RunID: "test"}}
	if err := WriteYAML(&buf, doc); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "---\n") {
		t.Fatalf("expected leading document marker, got %q", out)
	}
	if !strings.HasSuffix(out, "...\n") {
		t.Fatalf("expected trailing end marker, got %q", out)
	}
}

func TestWriteSummaryEmptyBucketsPrintZero(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, NewSummary())
	out := buf.String()
	for _, label := range []string{"passed: 0", "skipped: 0", "failed: 0", "metrics untrustworthy: 0"} {
		if !strings.Contains(out, label) {
			t.Fatalf("expected %q in summary, got %q", label, out)
		}
	}
}

func TestWriteSummaryOrdersDeterministically(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary()
	s.Passed["vm"] = 2
	s.Passed["cpu"] = 4
	WriteSummary(&buf, s)
	out := buf.String()
	if strings.Index(out, "cpu (4)") > strings.Index(out, "vm (2)") {
		t.Fatalf("expected alphabetical stressor order in summary, got %q", out)
	}
}
