package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/config"
	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check configuration, the local store and GitHub connectivity, and suggest fixes for common issues.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(out, "[1/%d] Checking configuration... ❌ %v\n", doctorCheckCount, err)
			return err
		}

		db, err := openStore(ctx, cfg)
		if err != nil {
			observability.CLILogger.Warn("Cannot open store", zap.Error(err))
			db = nil
		} else {
			defer db.Close() // nolint:errcheck // best-effort cleanup
		}

		d := &doctor{
			out:    out,
			cfg:    cfg,
			client: newGitHubClient(cfg, db, observability.CLILogger),
			now:    time.Now().UTC(),
		}
		if db != nil {
			d.store = db
		}
		if appViper != nil {
			d.configFile = appViper.ConfigFileUsed()
		}

		if !d.run(ctx) {
			return fmt.Errorf("doctor found problems")
		}
		return nil
	},
}

const doctorCheckCount = 5

// doctorStore is the part of the store doctor inspects.
type doctorStore interface {
	CheckHealth(ctx context.Context) error
	ListRateLimits(ctx context.Context, query store.RateLimitQuery) ([]store.RateLimitEntry, error)
	LatestCachedResponse(ctx context.Context) (*core.CachedResponse, error)
}

type doctor struct {
	out        io.Writer
	cfg        *config.Config
	configFile string
	store      doctorStore
	client     RateLimitFetcher
	now        time.Time
}

func (d *doctor) pass(step int, check, detail string) {
	fmt.Fprintf(d.out, "[%d/%d] Checking %s... ✅ %s\n", step, doctorCheckCount, check, detail)
}

func (d *doctor) warn(step int, check, detail string) {
	fmt.Fprintf(d.out, "[%d/%d] Checking %s... ⚠️  %s\n", step, doctorCheckCount, check, detail)
}

func (d *doctor) fail(step int, check, detail string) {
	fmt.Fprintf(d.out, "[%d/%d] Checking %s... ❌ %s\n", step, doctorCheckCount, check, detail)
}

// run prints one line per check and reports whether none failed. Warnings
// do not fail the run.
func (d *doctor) run(ctx context.Context) bool {
	ok := true

	// Check 1: configuration
	source := d.configFile
	if source == "" {
		source = "defaults and environment"
	}
	d.pass(1, "configuration", fmt.Sprintf("%s (base url %s)", source, d.cfg.GitHub.BaseURL))

	// Check 2: token
	if strings.TrimSpace(d.cfg.GitHub.Token) == "" {
		d.warn(2, "GitHub token", "not set; unauthenticated requests are limited to 60 per hour (set GITHUB_TOKEN or --token)")
	} else {
		d.pass(2, "GitHub token", "set")
	}

	// Check 3: store
	if d.store == nil {
		d.fail(3, "store", "cannot open "+d.storeLocation())
		ok = false
	} else if err := d.store.CheckHealth(ctx); err != nil {
		d.fail(3, "store", err.Error())
		ok = false
	} else {
		d.pass(3, "store", d.storeLocation())
	}

	// Check 4: stored limiter state
	if d.store != nil {
		d.checkStoredState(ctx)
	} else {
		d.warn(4, "stored rate limits", "skipped (no store)")
	}

	// Check 5: GitHub connectivity
	if d.client == nil {
		d.warn(5, "GitHub API", "skipped")
		return ok
	}
	limits, resp, err := d.client.RateLimits(ctx)
	if err != nil {
		d.fail(5, "GitHub API", err.Error())
		return false
	}
	rate, found := limits.Resource(core.ResourceCore)
	if !found {
		detail := "reachable"
		if resp != nil {
			detail += ", " + resp.Rate.String()
		}
		d.pass(5, "GitHub API", detail)
		return ok
	}
	info := rate.Info(d.now)
	detail := fmt.Sprintf("reachable, core %d/%d remaining, resets in %s", info.Remaining, info.Limit, info.ResetsIn)
	if info.Exhausted() {
		d.warn(5, "GitHub API", detail)
	} else {
		d.pass(5, "GitHub API", detail)
	}
	return ok
}

func (d *doctor) checkStoredState(ctx context.Context) {
	entries, err := d.store.ListRateLimits(ctx, store.RateLimitQuery{All: true})
	if err != nil {
		d.warn(4, "stored rate limits", err.Error())
		return
	}

	var blocked []string
	for _, entry := range entries {
		if entry.State.BackoffUntil != nil && entry.State.BackoffUntil.After(d.now) {
			blocked = append(blocked, entry.Resource)
		}
	}

	cacheDetail := "cache empty"
	if latest, err := d.store.LatestCachedResponse(ctx); err == nil && latest != nil {
		cacheDetail = "last cached " + formatTimeAgo(latest.StoredAt, d.now)
	}

	detail := fmt.Sprintf("%d resource(s), %s", len(entries), cacheDetail)
	if len(blocked) > 0 {
		d.warn(4, "stored rate limits", fmt.Sprintf("%s; backing off: %s (run 'octolens rate-limit reset --resource <name>')", detail, strings.Join(blocked, ", ")))
		return
	}
	d.pass(4, "stored rate limits", detail)
}

func (d *doctor) storeLocation() string {
	if url := strings.TrimSpace(d.cfg.Store.URL); url != "" {
		return url + " (remote)"
	}
	path := d.cfg.Store.Path
	if path == "" {
		path = config.DefaultStorePath()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if info, err := os.Stat(abs); err == nil {
		return fmt.Sprintf("%s (%s)", abs, formatFileSize(info.Size()))
	}
	return abs
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatTimeAgo returns a human-readable time relative to now
func formatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
