package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/searcher/ranker"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Rank quotes matching a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.close()

		if _, err := s.build(ctx, nil); err != nil {
			return err
		}
		s.drain(ctx)

		query := strings.Join(args, " ")
		results, err := s.coord.Search(ctx, query)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit > 0 && len(results) > limit {
			results = results[:limit]
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		writeResults(cmd.OutOrStdout(), results)
		return nil
	},
}

func writeResults(w io.Writer, results []ranker.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no matches")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tMATCH\tVIDEO\tAT\tQUOTE")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\t%s\t%s\n",
			i+1, r.Score, r.MatchClass, r.VideoID, formatTimestamp(r.StartTime), r.QuoteText)
	}
	tw.Flush()
}

// formatTimestamp renders seconds as m:ss, or h:mm:ss past an hour.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, total%3600/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func init() {
	searchCmd.Flags().IntP("limit", "n", 10, "maximum number of results; 0 prints all")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}
