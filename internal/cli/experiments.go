package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/experiment"
)

var experimentsCmd = &cobra.Command{
	Use:     "experiments",
	Aliases: []string{"list"},
	Short:   "List configured experiments",
	Long:    `List every configured experiment with its status, date window, variant weights and page patterns.`,
	RunE:    runExperiments,
}

func init() {
	rootCmd.AddCommand(experimentsCmd)
}

func runExperiments(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	printExperiments(cmd.OutOrStdout(), registry, time.Now())
	return nil
}

func printExperiments(out io.Writer, registry *experiment.Registry, now time.Time) {
	if registry.Len() == 0 {
		fmt.Fprintln(out, "No experiments configured.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Point [paths] experiments in forgeline.toml at a YAML file to add some.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tWINDOW\tVARIANTS\tPAGES")

	for _, exp := range registry.All() {
		status := strings.ToUpper(string(exp.Status))
		if exp.Status == experiment.StatusActive && !exp.Running(now) {
			status += " (idle)"
		}

		pages := "*"
		if len(exp.Pages) > 0 {
			pages = strings.Join(exp.Pages, ", ")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			exp.ID,
			status,
			formatWindow(exp.Start, exp.End),
			formatShares(exp),
			pages,
		)
	}

	w.Flush()
}

func formatWindow(start, end *time.Time) string {
	if start == nil && end == nil {
		return "always"
	}
	from, to := "…", "…"
	if start != nil {
		from = start.Format("2006-01-02")
	}
	if end != nil {
		to = end.Format("2006-01-02")
	}
	return from + " → " + to
}

// formatShares lists each variant with its share of the draw.
func formatShares(exp *experiment.Experiment) string {
	total := exp.TotalWeight()
	parts := make([]string, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		share := 0.0
		switch {
		case total > 0:
			share = v.Weight / total
		case len(exp.Variants) > 0:
			share = 1 / float64(len(exp.Variants))
		}
		parts = append(parts, fmt.Sprintf("%s %.0f%%", v.ID, share*100))
	}
	return strings.Join(parts, ", ")
}
