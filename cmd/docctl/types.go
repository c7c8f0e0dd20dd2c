package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/document-intake/internal/infrastructure/catalog"
)

func typesCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List supported document types and file extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tESTIMATE")
			for _, t := range cat.Types() {
				fmt.Fprintf(w, "%s\t%s\t%.0fs\n", t.Key, t.Name, t.EstimatedSeconds)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nextensions: %s\n", strings.Join(cat.AllowedExtensions(), " "))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "catalog", envOr("DOCUMENT_CATALOG_PATH", ""), "Catalog YAML file; empty uses the built-in catalog")
	return cmd
}
