package main

import (
	"os"

	"github.com/spf13/cobra"
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pawnshopd",
		Short:         "Runs pooled and maker-taker lending markets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCommand(), rateCommand())
	return root
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Stderr.WriteString("pawnshopd: " + err.Error() + "\n")
		os.Exit(1)
	}
}
