package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/core/engine"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/output"
)

var userConcurrency int

var userCmd = &cobra.Command{
	Use:   "user <login> [login...]",
	Short: "Show GitHub users' public profiles",
	Long: `Show the public profile of one or more GitHub users.

With several logins the lookups run concurrently and a summary row is shown
per user. Lookups stop as soon as GitHub reports the quota exhausted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userConcurrency < 1 {
			return errors.New("concurrency must be at least 1")
		}

		sess, err := openSession(cmd.Context(), observability.CLILogger)
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		users, lookupErr := fetchUsers(cmd.Context(), sess.client, args, userConcurrency)
		if len(users) == 0 {
			return lookupErr
		}

		if len(users) == 1 && len(args) == 1 {
			err = writeResult(cmd, "user."+users[0].Login, func(f output.Formatter) (string, error) {
				return f.FormatUser(users[0])
			})
		} else {
			err = writeResult(cmd, "users", func(f output.Formatter) (string, error) {
				return f.FormatUsers(users)
			})
		}
		if err != nil {
			return err
		}
		return lookupErr
	},
}

// UserGetter looks up a single user.
type UserGetter interface {
	User(ctx context.Context, login string) (*github.User, *github.Response, error)
}

// fetchUsers looks logins up concurrently. It returns the users found in
// argument order and the first error, so partial results can still be shown.
func fetchUsers(ctx context.Context, client UserGetter, logins []string, concurrency int) ([]*github.User, error) {
	orchestrator := &engine.Orchestrator{
		Concurrency: concurrency,
		Abort:       isQuotaError,
	}

	results, runErr := engine.Run(ctx, orchestrator, logins, func(ctx context.Context, login string) (*github.User, error) {
		user, _, err := client.User(ctx, login)
		return user, err
	})

	users := make([]*github.User, 0, len(results))
	var firstErr error
	for _, result := range results {
		if result.Err != nil {
			observability.CLILogger.Warn("User lookup failed",
				zap.String("login", result.Key),
				zap.Error(result.Err))
			if firstErr == nil {
				firstErr = fmt.Errorf("user %s: %w", result.Key, result.Err)
			}
			continue
		}
		users = append(users, result.Value)
	}

	if runErr != nil {
		return users, runErr
	}
	return users, firstErr
}

func isQuotaError(err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	return errors.As(err, &rateErr) || errors.As(err, &abuseErr)
}

func init() {
	userCmd.Flags().IntVar(&userConcurrency, "concurrency", engine.DefaultConcurrency, "Concurrent lookups")
	rootCmd.AddCommand(userCmd)
}
