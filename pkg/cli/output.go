package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

type OutputOptions struct {
	Format OutputFormat
	Quiet  bool
	Writer io.Writer
}

func NewOutputOptions() *OutputOptions {
	return &OutputOptions{
		Format: OutputTable,
		Quiet:  false,
		Writer: os.Stdout,
	}
}

// PrintOutput renders data as JSON or YAML. Table rendering is per resource;
// callers pass a renderTable func for the table case.
func PrintOutput(data any, opts *OutputOptions, renderTable func(w io.Writer) error) error {
	if opts.Quiet {
		return nil
	}

	switch opts.Format {
	case OutputJSON:
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintln(opts.Writer, string(b))
		return nil
	case OutputYAML:
		b, err := yaml.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		fmt.Fprint(opts.Writer, string(b))
		return nil
	default:
		if renderTable == nil {
			fmt.Fprintf(opts.Writer, "%v\n", data)
			return nil
		}
		return renderTable(opts.Writer)
	}
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func tableHeader(w io.Writer, columns ...string) {
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	separators := make([]string, len(columns))
	for i, c := range columns {
		separators[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(w, strings.Join(separators, "\t"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
