package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func rateCommand() *cobra.Command {
	var steps int
	c := &cobra.Command{
		Use:   "rate",
		Short: "Prints the borrow and savings rates over utilization",
		RunE: func(c *cobra.Command, _ []string) error {
			return printRates(c.OutOrStdout(), core.PiecewiseCurve{}, steps)
		},
	}
	c.Flags().IntVar(&steps, "steps", 20, "number of utilization steps between 0 and 1")
	return c
}

// printRates samples model at steps+1 evenly spaced utilizations.
func printRates(w io.Writer, model core.InterestRateModel, steps int) error {
	if steps <= 0 {
		return errors.Errorf("steps must be positive, got %d", steps)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "utilization\tborrow apr\tborrow apy\tsavings apr\tsavings apy\t")
	for i := 0; i <= steps; i++ {
		utilization := uint64(i) * core.PRECISION / uint64(steps)
		// utilization = loan / (loan + deposit) with loan + deposit = 1
		loan := core.NewAmount(utilization)
		deposit := core.NewAmount(core.PRECISION - utilization)
		rates, err := core.CalcInterestRate(model, loan, deposit)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			core.RatioToDecimal(rates.Utilization).StringFixed(4),
			rates.BorrowApr().StringFixed(6),
			rates.BorrowApy().StringFixed(6),
			rates.SavingsApr().StringFixed(6),
			rates.SavingsApy().StringFixed(6))
	}
	return tw.Flush()
}
