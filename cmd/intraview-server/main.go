package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"intraview/internal/chart"
	"intraview/internal/config"
	"intraview/internal/httpapi"
	"intraview/internal/prefs"
	"intraview/internal/query"
	"intraview/internal/rpc"
	"intraview/internal/store"
	"intraview/internal/util"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}

	// Setup logging.
	w, logFile, err := util.OpenLogFile(cfg.Logging.Dir, "intraview-server")
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, dir := range []string{cfg.Storage.DataDir, filepath.Dir(cfg.Storage.SQLitePath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	// Stores.
	catalog, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer catalog.Close()
	ps := store.NewParquetStore(cfg.Storage.DataDir)

	runner, err := query.NewRunner(ctx, query.Options{
		DataDir:    cfg.Storage.DataDir,
		DuckDBPath: cfg.Storage.DuckDBPath,
		MaxRows:    cfg.Query.MaxRows,
		Timeout:    cfg.Query.Timeout,
		History:    catalog,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer runner.Close()

	tree := query.NewTreeCache(cfg.Storage.DataDir)
	pf := prefs.NewStore(cfg.Prefs.Path, cfg.Prefs.MaxRecent, logger)

	api := httpapi.NewServer(httpapi.Config{
		Runner:         runner,
		Tree:           tree,
		History:        catalog,
		Catalog:        catalog,
		Bars:           ps,
		Ticks:          ps,
		Prefs:          pf,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxPoints:      cfg.Chart.MaxPoints,
		Render:         chart.RenderOptions{Width: cfg.Chart.Width, Height: cfg.Chart.Height},
		Version:        version,
		Logger:         logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		query.WatchTree(gctx, query.NewWatcher(cfg.Storage.DataDir, nil, logger), tree, cfg.Storage.TreeRefresh)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if addr := cfg.Server.GRPCAddr(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		gs := rpc.NewServer(rpc.NewService(runner, pf, cfg.Chart.MaxPoints, logger))
		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", addr)
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down intraview server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped", "error", err)
		return err
	}
	return nil
}
