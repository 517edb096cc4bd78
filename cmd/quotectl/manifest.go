package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the snapshot cache key of the manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		src, err := source.New(cfg.Source)
		if err != nil {
			return err
		}
		videos, err := loadManifest(cmd.Context(), cfg, src)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), snapshot.Fingerprint(videos))
		return nil
	},
}

var authorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "List the authors in the manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		src, err := source.New(cfg.Source)
		if err != nil {
			return err
		}
		videos, err := src.Manifest(cmd.Context())
		if err != nil {
			return err
		}
		videos = source.NormalizeManifest(videos, cfg.Source.DefaultAuthor)
		for _, author := range source.Authors(videos, cfg.Source.DefaultAuthor) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", author, len(source.FilterByAuthor(videos, author)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(authorsCmd)
}
