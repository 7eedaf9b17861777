package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/output"
	"github.com/namelens/octolens/internal/ratelimit"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect GitHub quota and persisted rate limit state",
}

var rateLimitStatusOffline bool

var rateLimitStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current GitHub quota per resource",
	Long: `Query GET /rate_limit, which does not count against any quota, and show
every resource bucket together with the headers of the response itself.

When GitHub cannot be reached, or with --offline, the headers of the most
recently cached response are shown instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), observability.CLILogger)
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		var client RateLimitFetcher = sess.client
		if rateLimitStatusOffline {
			client = nil
		}

		report, err := rateLimitStatus(cmd.Context(), client, sess.store, time.Now().UTC())
		if err != nil {
			return err
		}

		return writeResult(cmd, "rate-limit.status", func(f output.Formatter) (string, error) {
			return f.FormatRateLimits(report)
		})
	},
}

// RateLimitFetcher queries GET /rate_limit.
type RateLimitFetcher interface {
	RateLimits(ctx context.Context) (*github.RateLimits, *github.Response, error)
}

// CachedResponseSource returns the most recently cached API response.
type CachedResponseSource interface {
	LatestCachedResponse(ctx context.Context) (*core.CachedResponse, error)
}

// rateLimitStatus builds a report from a live query, falling back to the
// headers of the latest cached response when client is nil or fails.
func rateLimitStatus(ctx context.Context, client RateLimitFetcher, cache CachedResponseSource, now time.Time) (*output.RateLimitReport, error) {
	var liveErr error
	if client != nil {
		limits, resp, err := client.RateLimits(ctx)
		if err == nil {
			return buildRateLimitReport(limits, resp, now), nil
		}
		liveErr = err
	}

	if cache == nil {
		return nil, liveErr
	}
	cached, err := cache.LatestCachedResponse(ctx)
	if err != nil || cached == nil {
		if liveErr != nil {
			return nil, liveErr
		}
		if err != nil {
			return nil, err
		}
		return &output.RateLimitReport{}, nil
	}

	if liveErr != nil {
		observability.CLILogger.Warn("Live rate limit query failed; showing headers of the last cached response",
			zap.String("url", cached.URL),
			zap.Error(liveErr))
	}

	extractor := ratelimit.Extractor{Clock: func() time.Time { return now }}
	return &output.RateLimitReport{Header: extractor.FromResponse(cached)}, nil
}

func buildRateLimitReport(limits *github.RateLimits, resp *github.Response, now time.Time) *output.RateLimitReport {
	report := &output.RateLimitReport{Resources: map[string]ratelimit.Info{}}
	if resp != nil {
		report.Header = resp.Rate
	}
	if limits == nil {
		return report
	}
	for _, name := range limits.Names() {
		report.Resources[name] = limits.Resources[name].Info(now)
	}
	return report
}

func init() {
	rateLimitStatusCmd.Flags().BoolVar(&rateLimitStatusOffline, "offline", false, "Only report headers of the last cached response")

	rateLimitCmd.AddCommand(rateLimitStatusCmd)
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
