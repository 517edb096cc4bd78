// Command quotectl builds, inspects and queries a quote index from the
// command line, sharing the snapshot cache with quoteserver.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quotectl",
	Short: "Build and query the quote search index",
	Long: `quotectl reads a manifest and its transcripts from a directory or an HTTP
source, builds the hybrid lexical and semantic index (or restores it from the
snapshot cache), and answers queries against it.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (defaults and QS_* environment when empty)")
	flags.String("dir", "", "read the manifest and transcripts from this directory")
	flags.String("url", "", "read the manifest and transcripts from this base URL")
	flags.String("manifest", "", "manifest path relative to the source (default from config)")
	flags.String("cache", "", "snapshot cache backend: memory, file, redis, badger, postgres, none")
	flags.String("author", "", "only index videos by this author")
	flags.String("log-level", "warn", "log level written to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
