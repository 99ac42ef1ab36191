package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/taskflow/internal/observability"
)

// --- parseSinceDuration unit tests ---

func TestParseSinceDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"empty defaults to 7d", "", false, ""},
		{"whitespace defaults to 7d", "  ", false, ""},
		{"valid 7d", "7d", false, ""},
		{"valid 30d", "30d", false, ""},
		{"valid 24h", "24h", false, ""},
		{"valid 1h", "1h", false, ""},
		{"invalid suffix", "abc", true, "invalid duration"},
		{"unsupported unit", "5w", true, "unsupported duration suffix"},
		{"negative", "-5d", true, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSinceDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseSinceDuration_DefaultIsSevenDays(t *testing.T) {
	got, err := parseSinceDuration("")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Now().UTC().AddDate(0, 0, -7)
	if d := want.Sub(got); d < -time.Minute || d > time.Minute {
		t.Errorf("parseSinceDuration(\"\") = %v, want about %v", got, want)
	}
}

// --- metricsCmd tests ---

type metricsMock struct {
	calcFn func(since time.Time) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	return m.calcFn(since)
}

func withMetrics(t *testing.T, calc observability.MetricsCalculator) {
	t.Helper()
	orig, origSince, origJSON := MetricsCalc, metricsSince, metricsJSON
	t.Cleanup(func() {
		MetricsCalc, metricsSince, metricsJSON = orig, origSince, origJSON
	})
	MetricsCalc = calc
	metricsSince = "7d"
	metricsJSON = false
}

func TestMetricsCmd_NilCalculator(t *testing.T) {
	withMetrics(t, nil)

	_, err := runCommand(t, metricsCmd)
	if err == nil {
		t.Fatal("expected error when MetricsCalc is nil")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_InvalidSinceFormat(t *testing.T) {
	withMetrics(t, &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{}, nil
		},
	})
	metricsSince = "abc"

	_, err := runCommand(t, metricsCmd)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parsing --since") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_Success_TableFormat(t *testing.T) {
	last := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	withMetrics(t, &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{
				BatchesRun:       4,
				BatchesFailed:    1,
				TagsProcessed:    9,
				TagsSkipped:      2,
				PersonasSet:      1,
				EventCount:       42,
				PromptsTriggered: map[string]int{"critique_task": 2, "expand_task": 3},
				LastBatchAt:      &last,
			}, nil
		},
	})

	out, err := runCommand(t, metricsCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Batches run:", "42", "critique_task:", "Last batch:", "2026-03-01T09:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "critique_task") > strings.Index(out, "expand_task") {
		t.Errorf("prompts should be sorted by name:\n%s", out)
	}
}

func TestMetricsCmd_Success_JSONFormat(t *testing.T) {
	withMetrics(t, &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{TagsFailed: 2, EventCount: 10}, nil
		},
	})
	metricsJSON = true

	out, err := runCommand(t, metricsCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got observability.Metrics
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.TagsFailed != 2 || got.EventCount != 10 {
		t.Errorf("unexpected metrics: %+v", got)
	}
}

func TestMetricsCmd_CalculateError(t *testing.T) {
	withMetrics(t, &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return nil, fmt.Errorf("event log corrupted")
		},
	})

	_, err := runCommand(t, metricsCmd)
	if err == nil {
		t.Fatal("expected error from Calculate")
	}
	if !strings.Contains(err.Error(), "calculating metrics") {
		t.Errorf("unexpected error: %v", err)
	}
}
