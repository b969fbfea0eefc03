package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ROLE", "DAEMON"}, [][]string{
		{"station", "running"},
		{"p2p"},
	})

	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines (border, header, rule, 2 rows, border), got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "ROLE") || !strings.Contains(lines[1], "DAEMON") {
		t.Errorf("header line = %q", lines[1])
	}
	if !strings.Contains(lines[3], "station") || !strings.Contains(lines[3], "running") {
		t.Errorf("first row = %q", lines[3])
	}
	if !strings.Contains(lines[4], "p2p") {
		t.Errorf("short row = %q", lines[4])
	}
}

func TestRenderTable_NoHeaders(t *testing.T) {
	if got := renderTable(nil, [][]string{{"x"}}); got != "" {
		t.Errorf("renderTable(nil) = %q, want empty", got)
	}
}

func TestShouldColorize_Buffer(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
