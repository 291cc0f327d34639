package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/internal/pricing"
)

var (
	quoteMaterial  string
	quoteQuantity  int
	quoteRush      bool
	quoteFileCount int
	quoteComplex   bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a quote request",
	Long: `Price a quote request with the configured pricing tables and show the
breakdown. Without --material on a terminal, pick one interactively.

Examples:
  forgeline quote --material mild-steel --quantity 5
  forgeline quote --material brass --quantity 250 --rush --file-count 2 --complex`,
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().StringVarP(&quoteMaterial, "material", "m", "", "material code")
	quoteCmd.Flags().IntVarP(&quoteQuantity, "quantity", "q", 1, "number of parts")
	quoteCmd.Flags().BoolVar(&quoteRush, "rush", false, "rush order")
	quoteCmd.Flags().IntVar(&quoteFileCount, "file-count", 0, "number of attached drawings")
	quoteCmd.Flags().BoolVar(&quoteComplex, "complex", false, "drawings include 3D or native CAD files")
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	if quoteQuantity < 1 {
		return fmt.Errorf("--quantity must be at least 1")
	}

	calc, err := loadCalculator()
	if err != nil {
		return err
	}

	material := strings.ToLower(strings.TrimSpace(quoteMaterial))
	if material == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return fmt.Errorf("--material is required when not running in a terminal")
		}
		material, err = promptMaterial(calc.Tables().MaterialCodes())
		if err != nil {
			return err
		}
	}

	fileCount := quoteFileCount
	if quoteComplex && fileCount == 0 {
		fileCount = 1
	}

	in := pricing.Input{
		Material:        material,
		Quantity:        quoteQuantity,
		Rush:            quoteRush,
		FileCount:       fileCount,
		HasComplexFiles: quoteComplex,
	}
	printQuote(cmd.OutOrStdout(), in, calc.Calculate(in))
	return nil
}

func promptMaterial(codes []string) (string, error) {
	prompt := promptui.Select{
		Label: "Material",
		Items: codes,
		Size:  10,
	}

	_, code, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			os.Exit(0)
		}
		return "", err
	}
	return code, nil
}

func printQuote(out io.Writer, in pricing.Input, r pricing.Result) {
	b := r.Breakdown

	material := b.Material
	if material != in.Material {
		material = fmt.Sprintf("%s (priced as %s)", in.Material, b.Material)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Material:    %s\n", material)
	fmt.Fprintf(out, "  Quantity:    %s\n", humanize.Comma(int64(in.Quantity)))
	fmt.Fprintf(out, "  Complexity:  %s (x%.2f)\n", b.Complexity, b.ComplexityFactor)
	fmt.Fprintf(out, "  Rate:        $%s x %.2f, quantity x%.2f\n",
		humanize.FormatFloat("#,###.##", b.BaseRate), b.MaterialFactor, b.QuantityMultiplier)
	if in.Rush {
		fmt.Fprintf(out, "  Rush:        x%.2f\n", b.RushMultiplier)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Estimate:    $%s – $%s\n", humanize.Comma(r.LowPrice), humanize.Comma(r.HighPrice))
	fmt.Fprintf(out, "  Lead time:   %d business %s\n", r.EstLeadDays, pluralDays(r.EstLeadDays))
	fmt.Fprintln(out)
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
