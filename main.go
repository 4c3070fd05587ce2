// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gewnthar/bondstats/cache"
	"github.com/gewnthar/bondstats/config"
	"github.com/gewnthar/bondstats/database"
	"github.com/gewnthar/bondstats/handlers"
	"github.com/gewnthar/bondstats/logger"
	"github.com/gewnthar/bondstats/output"
	"github.com/gewnthar/bondstats/scraper"
	"github.com/gewnthar/bondstats/services"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	serve      bool
	category   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "bondstats",
		Short: "Builds rental bond statistics from the published NSW bond data",
		Long: `bondstats downloads the rental bond lodgement, refund and holdings workbooks,
caches them locally and writes median rents, refund totals, refund portions and
bonds held as CSV and Parquet tables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to the YAML config file (defaults only when empty)")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "serve the admin HTTP API instead of running once")
	cmd.Flags().StringVar(&opts.category, "category", "", "refresh only this category (holdings, lodgements or refunds)")
	// the admin API refreshes categories per request
	cmd.MarkFlagsMutuallyExclusive("serve", "category")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if opts.category != "" && !slices.Contains(config.Categories, opts.category) {
		return fmt.Errorf("unknown category %q", opts.category)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	log.Info().Str("list_url", cfg.Source.ListURL).Str("cache_dir", cfg.Cache.Dir).Str("output_dir", cfg.Output.Dir).Msg("Starting bondstats")

	// Left as nil interfaces when the database is disabled.
	var (
		versionLog  services.VersionLogger
		versionList handlers.VersionLister
	)
	if cfg.Database.Enabled {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("error initializing database: %w", err)
		}
		defer db.Close()
		versions := database.NewVersionStore(db, log)
		if err := versions.EnsureSchema(ctx); err != nil {
			return err
		}
		versionLog, versionList = versions, versions
		log.Info().Str("db", cfg.Database.DBName).Msg("Document version store enabled")
	}

	downloader := scraper.NewDownloader(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, log)
	store, err := cache.Open(cfg.Cache, downloader, log)
	if err != nil {
		return err
	}
	defer store.Close()

	writer, err := output.NewWriter(cfg.Output, log)
	if err != nil {
		return err
	}

	links := scraper.NewLinkFinder(cfg.Source, downloader, log)
	ingester := services.NewIngester(cfg.Source, links, store, versionLog, log)
	pipeline := services.NewPipeline(ingester, writer, cfg.Output.WriteNormalized, log)

	if opts.serve {
		admin := handlers.NewAdminHandler(pipeline, store, versionList, log)
		return serve(ctx, cfg.Server, admin, log)
	}

	if opts.category != "" {
		_, err := pipeline.RunCategory(ctx, opts.category)
		return err
	}
	_, err = pipeline.Run(ctx)
	return err
}

func serve(ctx context.Context, cfg config.ServerConfig, admin *handlers.AdminHandler, log zerolog.Logger) error {
	mux := http.NewServeMux()
	admin.Register(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("error starting server: %w", err)
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
