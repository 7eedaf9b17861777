package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/observability"
)

var cachePurgeOlderThan time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the conditional response cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached responses older than cache.max_age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		maxAge := cfg.Cache.MaxAge
		if cachePurgeOlderThan > 0 {
			maxAge = cachePurgeOlderThan
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cutoff := time.Now().UTC().Add(-maxAge)
		deleted, err := db.PurgeExpiredResponses(cmd.Context(), cutoff)
		if err != nil {
			return err
		}

		observability.CLILogger.Debug("Purged cached responses",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cached response(s) stored before %s\n", deleted, cutoff.Format(time.RFC3339))
		return err
	},
}

func init() {
	cachePurgeCmd.Flags().DurationVar(&cachePurgeOlderThan, "older-than", 0, "Override cache.max_age for this purge")
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
