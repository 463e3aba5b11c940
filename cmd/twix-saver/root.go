package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/AkaakuHub/twix-saver/pkg/accounts"
	"github.com/AkaakuHub/twix-saver/pkg/articles"
	"github.com/AkaakuHub/twix-saver/pkg/blob"
	"github.com/AkaakuHub/twix-saver/pkg/browser"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/orchestrator"
	"github.com/AkaakuHub/twix-saver/pkg/pipeline"
	"github.com/AkaakuHub/twix-saver/pkg/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "twix-saver",
	Short: "Harvest posts from a social platform into durable storage",
	Long: `twix-saver drives an automated browser over target timelines,
intercepts the platform's own API responses, and ingests the harvested
posts, linked articles and media into a local or remote store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(cleanupCmd)
}

// app holds the wired dependencies of one CLI invocation
type app struct {
	cfg *config.Config
	db  *gorm.DB

	jobs     *store.JobRepository
	posts    *store.PostRepository
	articles *store.ArticleRepository
	media    *store.MediaRepository
	accounts *store.AccountRepository

	pool     *accounts.Pool
	pipeline *pipeline.Pipeline
	orch     *orchestrator.Orchestrator
}

// newApp loads config and wires every component
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}

	secret, err := accounts.ResolveMasterSecret()
	if err != nil {
		return nil, err
	}
	cipher, err := accounts.NewCipher(secret)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.New(ctx, &cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		jobs:     store.NewJobRepository(db),
		posts:    store.NewPostRepository(db),
		articles: store.NewArticleRepository(db),
		media:    store.NewMediaRepository(db),
		accounts: store.NewAccountRepository(db),
	}
	a.pool = accounts.NewPool(a.accounts, cipher)

	mediaProc := pipeline.NewMediaProcessor(&cfg.Ingest, blobs, a.media)
	a.pipeline = pipeline.New(&cfg.Ingest, cfg.Scraper.ChunkDir, a.posts, a.articles, mediaProc)

	extractor := articles.NewHTTPExtractor(&cfg.Articles)
	a.orch = orchestrator.New(cfg, a.jobs, a.posts, a.articles, a.pool, a.pipeline, extractor,
		func() browser.Driver { return browser.NewChromeDriver(&cfg.Browser) })

	return a, nil
}
