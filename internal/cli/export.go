package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <experiment>",
	Short: "Export raw event data",
	Long: `Export the raw exposure and conversion events of an experiment in CSV or JSON format.

Examples:
  forgeline export hero-headline --format csv > hero.csv
  forgeline export hero-headline --format json > hero.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	return withStore(func(s *store.SQLiteStore) error {
		events, err := s.ListEvents(context.Background(), id)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		// Events may outlive their experiment's definition
		if _, ok := registry.Get(id); !ok && len(events) == 0 {
			return fmt.Errorf("experiment '%s' not found", id)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), events)
		}
		return exportJSON(cmd.OutOrStdout(), id, events)
	})
}

func exportCSV(out io.Writer, events []*store.Event) error {
	w := csv.NewWriter(out)

	// Write header
	if err := w.Write([]string{"timestamp", "event", "variant", "metric", "value", "session_id", "page"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.CreatedAt.Unix(), 10),
			string(e.Name),
			e.VariantID,
			e.Metric,
			strconv.FormatFloat(e.Value, 'f', -1, 64),
			e.SessionID,
			e.Page,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Experiment string      `json:"experiment"`
	Events     []jsonEvent `json:"events"`
}

type jsonEvent struct {
	Timestamp int64   `json:"timestamp"`
	Event     string  `json:"event"`
	Variant   string  `json:"variant"`
	Metric    string  `json:"metric,omitempty"`
	Value     float64 `json:"value,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	Page      string  `json:"page,omitempty"`
}

func exportJSON(out io.Writer, id string, events []*store.Event) error {
	export := jsonExport{
		Experiment: id,
		Events:     make([]jsonEvent, len(events)),
	}

	for i, e := range events {
		export.Events[i] = jsonEvent{
			Timestamp: e.CreatedAt.Unix(),
			Event:     string(e.Name),
			Variant:   e.VariantID,
			Metric:    e.Metric,
			Value:     e.Value,
			SessionID: e.SessionID,
			Page:      e.Page,
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
