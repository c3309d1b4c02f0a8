package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/core"
)

func newStocksCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stocks",
		Short: "List stock locations and their import column names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := root.openBackend(cmd.Context(), true, nil)
			if err != nil {
				return err
			}
			defer be.close()

			stocks, err := be.store.ListStocks(cmd.Context())
			if err != nil {
				return withCode(exitUnavailable, err)
			}
			printStocks(cmd, stocks)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Create a stock location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return withCode(exitUsage, fmt.Errorf("stock name is empty"))
			}

			be, err := root.openBackend(cmd.Context(), true, nil)
			if err != nil {
				return err
			}
			defer be.close()

			loc, err := be.pg.CreateStock(cmd.Context(), name)
			if err != nil {
				return withCode(exitUnavailable, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", loc.ID, core.StockHeader(loc.Name))
			return nil
		},
	})

	return cmd
}

func printStocks(cmd *cobra.Command, stocks []core.StockLocation) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tCOLONNE")
	for _, s := range stocks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, core.StockHeader(s.Name))
	}
	tw.Flush()
}
