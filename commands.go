package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/orian/trendlabel/facade"
	"github.com/orian/trendlabel/inference"
	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/paths"
	"github.com/orian/trendlabel/registry"
	"github.com/orian/trendlabel/saving"
)

const defaultConfigFile = "trendlabel.yaml"

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

var configPath string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trendlabel",
		Short: "Annotation ledger service for time-series trend labeling",
		Long: `trendlabel stores per-file trend annotations as CSV ledgers, keeps a
working and a saved copy of each, and can pre-fill a ledger from a trained
labeling model.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default ./"+defaultConfigFile+" when present)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	saveAllCmd := &cobra.Command{
		Use:   "save-all [dataset-folder]",
		Short: "Copy every working ledger of a dataset over its saved ledger",
		Long:  `Mirrors <annotations root>/<dataset>_CSV_Annotations/Working_Folder into Saving_Folder. Exits with status 1 when some files could not be saved.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSaveAll,
	}
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the models available for auto-labeling",
		Args:  cobra.NoArgs,
		RunE:  runModels,
	}

	rootCmd.AddCommand(serveCmd, saveAllCmd, modelsCmd)
	return rootCmd
}

func loadConfigAndLogger() (*Config, *slog.Logger, error) {
	path := configPath
	if path == "" && configFileExists(defaultConfigFile) {
		path = defaultConfigFile
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newCoordinator(cfg *Config, logger *slog.Logger) *saving.Coordinator {
	c := saving.NewCoordinator(logger)
	c.Attempts = cfg.SaveRetries
	c.Backoff = cfg.SaveBackoff
	c.OnFile = observeSaveFile
	return c
}

func newResolver(cfg *Config) *paths.Resolver {
	return paths.NewResolver(cfg.DataRoot(), cfg.AnnotationsRoot)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	logger.Info("starting trendlabel",
		"listen", cfg.Listen,
		"raw_data_dir", cfg.RawDataDir,
		"annotations_root", cfg.AnnotationsRoot,
		"models_dir", cfg.ModelsDir,
		"duckdb_path", cfg.DuckDBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := NewDuckDBStorage(cfg.DuckDBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storage.Close()

	resolver := newResolver(cfg)
	series, err := NewDuckDBSeriesReader(resolver, cfg.TimeColumn, cfg.DefaultTimezone, cfg.Window, logger)
	if err != nil {
		return err
	}
	defer series.Close()

	reg := registry.New(cfg.ModelsDir, logger)
	go func() {
		if err := reg.Watch(ctx); err != nil {
			logger.Warn("model registry watcher stopped", "error", err)
		}
	}()

	var warehouse *ClickHousePublisher
	var publisher facade.Publisher
	if cfg.ClickHouse.Enabled() {
		conn, err := openClickHouse(cfg.ClickHouse, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		warehouse = NewClickHousePublisher(conn, cfg.ClickHouse.Database, cfg.ClickHouse.Table, logger)
		if err := warehouse.EnsureTable(ctx); err != nil {
			logger.Warn("ClickHouse table check failed, publishing may fail", "error", err)
		}
		publisher = warehouse
	}

	f := facade.New(facade.Config{
		Resolver:        resolver,
		Saver:           newCoordinator(cfg, logger),
		Series:          series,
		Models:          reg,
		Predictor:       inference.NewHTTPPredictor(cfg.InferenceURL, cfg.InferenceTimeout, logger),
		Publisher:       publisher,
		Observer:        taskObserver(storage, logger),
		Labels:          cfg.Labels,
		DefaultTimezone: cfg.DefaultTimezone,
		Logger:          logger,
	})

	server := NewServer(f, storage, reg, cfg.RawDataDir, logger)
	server.staticDir = cfg.StaticDir
	server.warehouse = warehouse

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runSaveAll(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	dataset := cfg.Dataset()
	if len(args) == 1 {
		dataset = args[0]
	}

	f := facade.New(facade.Config{
		Resolver: newResolver(cfg),
		Saver:    newCoordinator(cfg, logger),
		Logger:   logger,
	})
	outcome, err := f.SaveDataset(dataset)
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
	if errors.Is(err, models.ErrPartialSave) {
		return exitError{code: 1, err: err}
	}
	return err
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	list, err := registry.New(cfg.ModelsDir, logger).List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILE\tDESCRIPTION")
	for _, m := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Name, m.File, m.ShortDescription)
	}
	return tw.Flush()
}
