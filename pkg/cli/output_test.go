package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestPrintOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	opts := &OutputOptions{Format: OutputJSON, Writer: &buf}

	data := map[string]string{"status": "open"}
	if err := PrintOutput(data, opts, nil); err != nil {
		t.Fatalf("PrintOutput: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["status"] != "open" {
		t.Errorf("status = %q", decoded["status"])
	}
}

func TestPrintOutputYAML(t *testing.T) {
	var buf bytes.Buffer
	opts := &OutputOptions{Format: OutputYAML, Writer: &buf}

	if err := PrintOutput(map[string]int{"total": 3}, opts, nil); err != nil {
		t.Fatalf("PrintOutput: %v", err)
	}

	var decoded map[string]int
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if decoded["total"] != 3 {
		t.Errorf("total = %d", decoded["total"])
	}
}

func TestPrintOutputTable(t *testing.T) {
	var buf bytes.Buffer
	opts := &OutputOptions{Format: OutputTable, Writer: &buf}

	err := PrintOutput(nil, opts, func(w io.Writer) error {
		tw := newTabWriter(w)
		tableHeader(tw, "ID", "STATUS")
		return tw.Flush()
	})
	if err != nil {
		t.Fatalf("PrintOutput: %v", err)
	}
	if !strings.Contains(buf.String(), "ID") {
		t.Errorf("table output missing header: %q", buf.String())
	}
}

func TestPrintOutputQuiet(t *testing.T) {
	var buf bytes.Buffer
	opts := &OutputOptions{Format: OutputJSON, Quiet: true, Writer: &buf}

	if err := PrintOutput("anything", opts, nil); err != nil {
		t.Fatalf("PrintOutput: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("quiet mode wrote output: %q", buf.String())
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(time.Time{}); got != "-" {
		t.Errorf("zero time = %q, want -", got)
	}
	if got := formatTimePtr(nil); got != "-" {
		t.Errorf("nil time = %q, want -", got)
	}
}
