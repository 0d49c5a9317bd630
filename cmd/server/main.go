package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gis-map-server/internal/buffer"
	"gis-map-server/internal/config"
	"gis-map-server/internal/frontend"
	"gis-map-server/internal/httpserver"
	"gis-map-server/internal/metrics"
	"gis-map-server/internal/render"
	"gis-map-server/internal/scheduler"
)

func main() {
	root := &cobra.Command{
		Use:   "gis-map-server <config_path>",
		Short: "serves map-tile render orders over HTTP/1.0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Arguments parsing error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config parsing error: %w", err)
	}

	gisRoot, err := config.GISRoot()
	if err != nil {
		return err
	}

	if err := config.PrepareLogDir(gisRoot); err != nil {
		return fmt.Errorf("could not get access to log folder: %w", err)
	}

	logger, err := newLogger(config.LogPath(gisRoot))
	if err != nil {
		return fmt.Errorf("could not start logging: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := render.PrepareSharedMemory(ctx, cfg.GISSharedMemID); err != nil {
		return fmt.Errorf("could not make data request for sharedMemoryId %s: %w", cfg.GISSharedMemID, err)
	}

	rec := metrics.NewRecorder()
	spawner := render.NewSpawner(
		config.RendererPath(gisRoot),
		fmt.Sprintf("http://%s:%d", cfg.ServerAddress, cfg.ServerPort),
		cfg.GISSharedMemID,
		logger,
	)

	sched := scheduler.New(cfg.SlotsNumber, spawner, rec, logger)
	go sched.Run(ctx)

	buf := buffer.New(cfg.StorageMaxSize)
	pages := frontend.NewPages(config.HTMLPagesDir(gisRoot, cfg.HTMLPagesPath))
	fe := frontend.New(sched, buf, pages, cfg.ServerAddress, cfg.ServerPort, logger)
	srv := httpserver.New(fe, rec, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		cancel()
		os.Exit(0)
	}()

	addr := net.JoinHostPort(cfg.ServerAddress, strconv.Itoa(cfg.ServerPort))
	logger.Infow("gis-map-server starting", "address", addr)
	if err := srv.ListenAndServe(addr); err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}
	return nil
}

func newLogger(logPath string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
