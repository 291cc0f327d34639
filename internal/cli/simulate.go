package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/session"
	"github.com/forgeline/forgeline/internal/stats"
)

// simulationConfidence is the two-sided level for the per-variant interval.
const simulationConfidence = 0.99

var (
	simulateDraws int
	simulateSeed  uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <experiment>",
	Short: "Simulate assignments for fresh visitors",
	Long: `Run the assignment engine for many fresh sessions and compare the observed
variant shares with the configured weights. Nothing is recorded.

Example:
  forgeline simulate hero-headline --draws 100000`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simulateDraws, "draws", "n", 10000, "number of fresh sessions to assign")
	simulateCmd.Flags().Uint64Var(&simulateSeed, "seed", 0, "random seed (0 picks one)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateDraws < 1 {
		return fmt.Errorf("--draws must be at least 1")
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	var opts []experiment.Option
	opts = append(opts, experiment.WithLogger(logger))
	if simulateSeed != 0 {
		opts = append(opts, experiment.WithSource(rand.New(rand.NewPCG(simulateSeed, simulateSeed))))
	}

	return simulate(cmd.Context(), cmd.OutOrStdout(), experiment.NewEngine(registry, opts...), args[0], simulateDraws)
}

type simulationRow struct {
	variant  string
	count    int
	expected float64
}

func simulate(ctx context.Context, out io.Writer, engine *experiment.Engine, id string, draws int) error {
	exp := engine.Resolve(id)
	if exp == nil {
		if _, ok := engine.Registry().Get(id); !ok {
			return fmt.Errorf("experiment '%s' not found", id)
		}
		fmt.Fprintf(out, "Experiment '%s' is not running; every visitor sees %s.\n", id, experiment.ControlVariant)
		return nil
	}

	sessions := session.NewMemory(0, 0)
	defer sessions.Close()

	counts := make(map[string]int, len(exp.Variants))
	for i := 0; i < draws; i++ {
		a := engine.Assign(ctx, sessions.Session(session.NewID()), id, "")
		counts[a.VariantID]++
	}

	total := exp.TotalWeight()
	rows := make([]simulationRow, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		expected := 1 / float64(len(exp.Variants))
		if total > 0 {
			expected = v.Weight / total
		}
		rows = append(rows, simulationRow{variant: v.ID, count: counts[v.ID], expected: expected})
	}

	fmt.Fprintf(out, "%s draws for %s\n\n", humanize.Comma(int64(draws)), id)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tCOUNT\tOBSERVED\tEXPECTED\t99% INTERVAL\t")
	drifted := 0
	for _, r := range rows {
		check := stats.CheckShare(r.count, draws, r.expected, simulationConfidence)
		verdict := "ok"
		if !check.Consistent() {
			verdict = "DRIFT"
			drifted++
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f%%\t%.2f%%\t%.2f%% – %.2f%%\t%s\n",
			r.variant,
			humanize.Comma(int64(r.count)),
			100*check.Observed,
			100*r.expected,
			100*check.Interval.Lower,
			100*check.Interval.Upper,
			verdict,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if drifted > 0 {
		fmt.Fprintf(out, "\n%d variant(s) outside the expected range; check the weights or the random source.\n", drifted)
	}
	return nil
}
