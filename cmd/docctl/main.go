// Command docctl is an operator tool for the document intake service: it
// mints development tokens, signs and replays analysis callbacks, and
// prints the document catalog.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Operator tooling for the document intake service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(tokenCmd())
	root.AddCommand(signCmd())
	root.AddCommand(webhookCmd())
	root.AddCommand(typesCmd())
	return root
}
