package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/atelier-carto/fondplan/internal/commune"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <commune name>",
	Short: "List communes matching a name query",
	Long:  "Queries the commune directory and prints every match with its INSEE code and department, best matches first.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		nameQuery := strings.Join(args, " ")

		resolver := commune.NewResolver(cfg.Geo.BaseURL, cfg.Geo.Timeout(), nil)
		candidates, err := resolver.Search(ctx, nameQuery)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}
		if len(candidates) == 0 {
			fmt.Printf("No commune matches %q.\n", nameQuery)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tINSEE\tDEPARTMENT")
		for _, c := range candidates {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Code, commune.DeriveDepartment(c.Code))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
