package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/output"
)

var (
	rateLimitListAll    bool
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit state",
	Long: `List the quota, reset time and backoff window last persisted for each
GitHub resource. This reads the local store only and makes no API calls.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RateLimitQuery{
			All:    rateLimitListAll,
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeResult(cmd, "rate-limit.list", func(f output.Formatter) (string, error) {
			return f.FormatRateLimitEntries(entries)
		})
	},
}

func init() {
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all resources")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List resources with matching prefix")
}
