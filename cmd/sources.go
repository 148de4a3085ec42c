package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atelier-carto/fondplan/internal/wfs"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the WFS layer sources",
	Long:  "Prints the declared feature-service sources in fetch order with their type names and style keys.",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LAYER\tTYPE NAME\tSTYLE KEY")
		for _, src := range wfs.Sources() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", src.DisplayName, src.TypeName, src.StyleKey)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
