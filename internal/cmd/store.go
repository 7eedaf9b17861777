package cmd

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/config"
	"github.com/namelens/octolens/internal/core/engine"
	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/github"
)

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// session bundles what a GitHub command needs: configuration, the local
// store and a client wired to it.
type session struct {
	cfg    *config.Config
	store  *store.Store
	client *github.Client
}

func openSession(ctx context.Context, logger *zap.Logger) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &session{
		cfg:    cfg,
		store:  db,
		client: newGitHubClient(cfg, db, logger),
	}, nil
}

func (s *session) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// newGitHubClient builds a client that persists quota state to db and, when
// the cache is enabled, revalidates GET responses against it.
func newGitHubClient(cfg *config.Config, db *store.Store, logger *zap.Logger) *github.Client {
	opts := []github.Option{
		github.WithBaseURL(cfg.GitHub.BaseURL),
		github.WithToken(cfg.GitHub.Token),
		github.WithLogger(logger),
	}
	if cfg.GitHub.UserAgent != "" {
		opts = append(opts, github.WithUserAgent(cfg.GitHub.UserAgent))
	}
	if cfg.GitHub.Timeout > 0 {
		opts = append(opts, github.WithHTTPClient(&http.Client{Timeout: cfg.GitHub.Timeout}))
	}

	if db != nil {
		limiter := &engine.RateLimiter{Store: db}
		limiter.ApplySafetyMargin(cfg.RateLimitMargin)
		opts = append(opts, github.WithLimiter(limiter))

		if cfg.Cache.Enabled {
			opts = append(opts, github.WithCache(db, cfg.Cache.TTL))
		}
	}

	return github.NewClient(opts...)
}
