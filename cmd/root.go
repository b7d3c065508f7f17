// Package cmd defines the serpforge command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/app"
	"github.com/vishalm/serp-forge/internal/batch"
	"github.com/vishalm/serp-forge/internal/config"
	"github.com/vishalm/serp-forge/internal/logging"
	"github.com/vishalm/serp-forge/internal/pipeline"
	"github.com/vishalm/serp-forge/internal/serp"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey    appKeyType = "app"
	configKey appKeyType = "config"
)

// needsAnnotation lets a command opt out of service construction. Commands
// without it get configuration and the full App.
const (
	needsAnnotation = "serpforge/needs"
	needsNothing    = "nothing"
	needsConfig     = "config"
)

// App is what commands use from the application container. It is an
// interface so tests can inject a fake.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	RunQuery(ctx context.Context, req pipeline.Request) *serp.QueryResult
	RunBatch(ctx context.Context, req batch.Request) *serp.BatchResult
	Handler() http.Handler
	Close(ctx context.Context) error
}

// loadConfig and newApp are variables so tests can replace them.
var (
	loadConfig = config.Load
	newApp     = func(ctx context.Context, cfg config.Config) (App, error) {
		logger, err := logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
			File: logging.FileOptions{
				Path:       cfg.Logging.File.Path,
				MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
				MaxBackups: cfg.Logging.File.MaxBackups,
				MaxAgeDays: cfg.Logging.File.MaxAgeDays,
				Compress:   cfg.Logging.File.Compress,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			_ = logger.Sync()
			return nil, err
		}
		return a, nil
	}
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serpforge",
		Short: "Search the web and extract clean, analyzed content from the results.",
		Long: `serpforge queries a Google search API, fetches every result page with
browser-like requests, and extracts the main text along with metadata,
keywords, sentiment and a quality score. Run single queries, batches from
a file, or serve the same pipeline over HTTP.`,
		SilenceUsage: true,

		// Loads configuration and, unless the command opts out, builds the
		// application services and stores them in the command context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			needs := cmd.Annotations[needsAnnotation]
			if needs == needsNothing {
				return nil
			}
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			if needs == needsConfig {
				cmd.SetContext(ctx)
				return nil
			}
			appInstance, err := newApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(ctx, appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, ok := cmd.Context().Value(appKey).(App)
			if !ok || appInstance == nil {
				return nil
			}
			err := appInstance.Close(context.WithoutCancel(cmd.Context()))
			_ = appInstance.Logger().Sync()
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./serpforge.yaml or $HOME/.serpforge/serpforge.yaml)")

	cmd.AddCommand(
		newSearchCmd(serp.SearchWeb, "search", "Search the web and extract page content"),
		newSearchCmd(serp.SearchNews, "news", "Search news and extract article content"),
		newSearchCmd(serp.SearchImages, "images", "Search images"),
		newSearchCmd(serp.SearchVideos, "videos", "Search videos"),
		newBatchCmd(),
		newServeCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}
