package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/output"
)

var emojisFilter string

var emojisCmd = &cobra.Command{
	Use:   "emojis",
	Short: "List the emojis available on GitHub",
	Long: `List emoji names and image URLs from GET /emojis.

Examples:
  octolens emojis --filter metal
  octolens emojis -o json --out emojis.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), observability.CLILogger)
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		emojis, err := fetchEmojis(cmd.Context(), sess.client, emojisFilter)
		if err != nil {
			return err
		}

		return writeResult(cmd, "emojis", func(f output.Formatter) (string, error) {
			return f.FormatEmojis(emojis)
		})
	},
}

// EmojiLister is the client call fetchEmojis needs.
type EmojiLister interface {
	Emojis(ctx context.Context) (map[string]string, *github.Response, error)
}

func fetchEmojis(ctx context.Context, client EmojiLister, filter string) (map[string]string, error) {
	emojis, resp, err := client.Emojis(ctx)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		observability.CLILogger.Debug("Fetched emojis",
			zap.Int("count", len(emojis)),
			zap.Bool("from_cache", resp.FromCache),
			zap.Stringer("rate_limit", resp.Rate))
	}
	return filterEmojis(emojis, filter), nil
}

// filterEmojis keeps names containing filter, case-insensitively.
func filterEmojis(emojis map[string]string, filter string) map[string]string {
	needle := strings.ToLower(strings.TrimSpace(filter))
	if needle == "" {
		return emojis
	}
	filtered := make(map[string]string)
	for name, url := range emojis {
		if strings.Contains(strings.ToLower(name), needle) {
			filtered[name] = url
		}
	}
	return filtered
}

func init() {
	emojisCmd.Flags().StringVar(&emojisFilter, "filter", "", "Only list emojis whose name contains this text")
	rootCmd.AddCommand(emojisCmd)
}
