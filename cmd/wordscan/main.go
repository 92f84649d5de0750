package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/wordscan/pkg/scan"
)

func newRootCmd() *cobra.Command {
	cfg := scan.Config{}

	cmd := &cobra.Command{
		Use:   "wordscan <pattern> <wordlist_path>",
		Short: "Search a very large newline-delimited wordlist for a pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Pattern = args[0]
			cfg.WordlistPath = args[1]
			cfg.Out = cmd.OutOrStdout()

			var logger *zap.Logger

			var err error
			if cfg.Verbose {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}

			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			defer logger.Sync() //nolint:errcheck

			cfg.Logger = logger

			_, err = scan.Run(cfg)

			return err
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&cfg.Exact, "exact", false, "match requires whole-line equality")
	flags.BoolVar(&cfg.First, "first", false, "stop after the first match")
	flags.BoolVar(&cfg.Regex, "regex", false, "interpret pattern as a regular expression over bytes")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "emit startup and end-of-run statistics")
	flags.BoolVar(&cfg.Position, "position", false, "prefix every output line with its byte offset and ':'")
	flags.Int64Var(&cfg.BlockSize, "block", scan.DefaultBlockSize, "warm-up read block size in bytes")
	flags.Int64Var(&cfg.CacheSize, "cache", scan.DefaultCacheSize, "sliding-window size in bytes")
	flags.Int64Var(&cfg.ShardSize, "shard", scan.DefaultShardSize, "dispatcher chunk size in bytes")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
