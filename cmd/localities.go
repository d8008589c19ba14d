package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/place-engineering/sitelayers/internal/sources"
)

var localitiesCmd = &cobra.Command{
	Use:   "localities",
	Short: "Print the locality table",
	Long:  "Lists every locality rule in evaluation order with its layers and candidate endpoint counts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := sources.LoadFile(cfg.Sources.File)
		if err != nil {
			return eris.Wrap(err, "localities")
		}
		formatLocalities(cmd.OutOrStdout(), table.Rules())
		return nil
	},
}

// formatLocalities writes one row per rule to w.
func formatLocalities(out io.Writer, rules []sources.Rule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RULE\tCOUNTY\tCITY\tLAYERS")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t------")

	for _, r := range rules {
		county := r.County
		if r.Default {
			county = "(default)"
		}
		city := r.City
		if city == "" {
			city = "*"
		}
		layers := make([]string, len(r.Layers))
		for i, l := range r.Layers {
			layers[i] = fmt.Sprintf("%s(%d)", l.Name, len(l.Candidates))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, county, city, strings.Join(layers, ", "))
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(localitiesCmd)
}
