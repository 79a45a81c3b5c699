package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"property-map-search/api"
	"property-map-search/config"
	"property-map-search/mapengine"
	"property-map-search/models"
	"property-map-search/services"
	"property-map-search/storage"
	"property-map-search/utils"
)

func main() {
	cfg := config.Load()
	sessionID := uuid.NewString()
	logger := utils.NewLoggerWithOptions(os.Stdout, cfg.LogLevel, true).With("session_id", sessionID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Property Map Search starting ===")
	logger.Info("Config — source: %s | concurrency: %d | recompute interval: %dms",
		cfg.PropertySource, cfg.MaxConcurrency, cfg.RecomputeIntervalMs)

	retry := &utils.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   2 * time.Second,
		Logger:      logger,
	}

	source, closeSource, err := openSource(ctx, cfg, retry, logger)
	if err != nil {
		logger.Error("Failed to open property source: %v", err)
		os.Exit(1)
	}
	defer closeSource()

	cached := storage.NewCachedSource(source, time.Duration(cfg.SourceCacheTTLSec)*time.Second, logger)
	records, err := cached.FetchAll(ctx)
	if err != nil {
		logger.Error("Failed to load properties: %v", err)
		os.Exit(1)
	}
	logger.Info("Loaded %d raw properties", len(records))

	var (
		engine services.MapEngine
		chrome *mapengine.ChromeMap
	)
	if cfg.MapPageURL != "" {
		chrome, err = mapengine.NewChromeMap(ctx, cfg.MapPageURL, cfg.ChromeBin, retry, logger)
		if err != nil {
			logger.Error("Failed to open map page: %v", err)
			os.Exit(1)
		}
		defer chrome.Close()
		engine = chrome
	} else {
		logger.Info("MAP_PAGE_URL not set — rendering to the in-memory recorder")
		engine = mapengine.NewRecorder(logger)
	}

	normalizer := services.NewNormalizer(logger, orb.Point{cfg.DefaultLng, cfg.DefaultLat})
	ctrl := services.NewController(sessionID, normalizer, engine, cfg.DefaultFilterSettings(), logger)
	pool := utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RecomputeIntervalMs)
	dispatcher := services.NewDispatcher(ctrl, pool, logger)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = dispatcher.Run(ctx)
	}()

	snap, err := dispatcher.SetProperties(ctx, records)
	if err != nil {
		logger.Error("Initial recompute failed: %v", err)
		os.Exit(1)
	}

	if vp, ok := initialViewport(cfg, chrome, logger); ok {
		if snap, err = dispatcher.OnViewportChange(ctx, vp); err != nil {
			logger.Error("Applying initial viewport failed: %v", err)
			os.Exit(1)
		}
	}

	services.PrintStatistics(os.Stdout, snap)

	if err := exportCSV(cfg.CSVOutputPath, snap); err != nil {
		logger.Error("CSV export failed: %v", err)
	} else {
		logger.Info("Filtered properties saved to %s", cfg.CSVOutputPath)
	}

	if cfg.HTTPAddr == "" && chrome == nil {
		fmt.Printf("  Done. Filtered data → %s\n\n", cfg.CSVOutputPath)
		return
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if chrome == nil {
			return
		}
		if err := chrome.Pump(ctx, 250*time.Millisecond, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Map event pump stopped: %v", err)
		}
	}()

	var server *api.Server
	if cfg.HTTPAddr != "" {
		server = api.NewServer(cfg.HTTPAddr, dispatcher, cached, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("HTTP server failed: %v", err)
				stop()
			}
		}()
	}

	<-ctx.Done()

	// Stop every producer of events before draining the recompute workers.
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown: %v", err)
		}
		cancel()
	}
	<-pumpDone
	<-loopDone
	pool.Wait()

	logger.Info("=== Property Map Search stopped ===")
}

// openSource returns the configured property source and a func that closes it.
func openSource(ctx context.Context, cfg *config.Config, retry *utils.RetryConfig, logger *utils.Logger) (storage.PropertySource, func(), error) {
	csvSource := storage.NewCSVSource(cfg.CSVInputPath)

	if cfg.PropertySource != "postgres" {
		logger.Info("Reading properties from %s", cfg.CSVInputPath)
		return csvSource, func() {}, nil
	}

	pg, err := storage.NewPostgresSource(ctx, cfg.DSN(), retry)
	if err != nil {
		logger.Error("Make sure PostgreSQL is running: docker compose up -d")
		return nil, nil, err
	}

	if cfg.SeedPostgres {
		n, err := seed(ctx, pg, csvSource)
		if err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		logger.Info("Seeded PostgreSQL with %d properties from %s", n, cfg.CSVInputPath)
	}

	return pg, func() { _ = pg.Close() }, nil
}

// initialViewport prefers INITIAL_VIEWPORT, then whatever the map page shows.
func initialViewport(cfg *config.Config, chrome *mapengine.ChromeMap, logger *utils.Logger) (models.ViewportBounds, bool) {
	if vp, ok := cfg.Viewport(); ok {
		return vp, true
	}
	if cfg.InitialViewport != "" {
		logger.Warn("Ignoring malformed INITIAL_VIEWPORT %q (want south,north,west,east)", cfg.InitialViewport)
	}
	if chrome == nil {
		return models.ViewportBounds{}, false
	}

	vp, err := chrome.ReadBounds()
	if err != nil {
		logger.Warn("Could not read the map viewport: %v", err)
		return models.ViewportBounds{}, false
	}
	return vp, true
}

// seed copies every record of src into dst.
func seed(ctx context.Context, dst storage.PropertyWriter, src storage.PropertySource) (int, error) {
	records, err := src.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	if err := dst.Write(ctx, records); err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	return len(records), nil
}

func exportCSV(path string, snap models.Snapshot) error {
	w, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	return exportSnapshot(w, snap)
}

// exportSnapshot writes the filtered collection and closes w.
func exportSnapshot(w storage.SnapshotWriter, snap models.Snapshot) error {
	if err := w.WriteSnapshot(snap.Filtered); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
