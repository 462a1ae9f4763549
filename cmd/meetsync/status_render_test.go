package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"meetsync/internal/api"
	"meetsync/internal/daemonctl"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Meetsync", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Meetsync:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Meetsync", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	cases := map[string]statusKind{
		"ok":      statusOK,
		"WARN":    statusWarn,
		"warning": statusWarn,
		"error":   statusError,
		"":        statusInfo,
		"other":   statusInfo,
	}
	for input, want := range cases {
		if got := statusKindFromSeverity(input); got != want {
			t.Fatalf("statusKindFromSeverity(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFormatStatusLabel(t *testing.T) {
	if got := formatStatusLabel("awaiting_speaker_review"); got != "Awaiting Speaker Review" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := formatStatusLabel("  "); got != "" {
		t.Fatalf("expected empty label, got %q", got)
	}
}

func TestBuildCountRowsSkipsZeroCounts(t *testing.T) {
	rows := buildCountRows(api.WorkflowStatus{
		Assets:       map[string]int{"detected": 2, "failed": 0},
		Jobs:         map[string]int{"transcribing": 1},
		Offline:      map[string]int{"video": 3},
		OpenSessions: 1,
	})
	want := [][]string{
		{"Recordings", "Detected", "2"},
		{"Jobs", "Transcribing", "1"},
		{"Offline", "Video", "3"},
		{"Sessions", "Open", "1"},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %v", len(want), rows)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestRenderStatusEmptyPipeline(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, &daemonctl.Snapshot{
		SystemChecks: []api.StatusLine{{Label: "Meetsync", Severity: "warn", Detail: "Not running"}},
		Paths:        []api.StatusLine{{Label: "Watch", Severity: "ok", Detail: "/tmp/watch"}},
		Workflow:     api.WorkflowStatus{LastError: "calendar unreachable"},
	}, false)
	out := buf.String()
	for _, want := range []string{
		"== System Status ==",
		"[WARN] Not running",
		"== Paths ==",
		"[ERROR] calendar unreachable",
		"Nothing recorded yet",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
