package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index and store its snapshot",
	Long: `build fetches every transcript in the manifest, builds the index and writes
the snapshot to the configured cache. An unchanged manifest is restored from
the cache instead.`,
	Args: cobra.NoArgs,
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

		quiet, _ := cmd.Flags().GetBool("quiet")
		progress := cmd.ErrOrStderr()
		if quiet {
			progress = nil
		}
		ready, err := s.build(ctx, progress)
		if err != nil {
			return err
		}
		status := s.coord.Status()
		source := "built"
		if ready.Cached {
			source = "restored from cache"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d videos, %d quotes, key %s\n",
			source, ready.TotalVideos, ready.TotalQuotes, status.CacheKey)
		if n := len(status.FailedVideos); n > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d videos without transcript: %v\n", n, status.FailedVideos)
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().BoolP("quiet", "q", false, "do not print per-video progress")
	rootCmd.AddCommand(buildCmd)
}
