package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript BVID",
	Short: "Print the quotes of one video",
	Args:  cobra.ExactArgs(1),
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

		quotes, err := s.coord.Transcript(ctx, args[0])
		if err != nil {
			return err
		}
		if len(quotes) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no quotes for %s\n", args[0])
			return nil
		}
		for _, q := range quotes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", formatTimestamp(q.Start), q.Text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transcriptCmd)
}
