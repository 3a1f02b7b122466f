// engaged serves per-frame engagement scoring over HTTP and websockets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-engage/internal/config"
	"github.com/teslashibe/go-engage/internal/log"
	"github.com/teslashibe/go-engage/pkg/analyzer"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/inference/cv"
	"github.com/teslashibe/go-engage/pkg/vision"
	"github.com/teslashibe/go-engage/pkg/web"
	"github.com/teslashibe/go-engage/pkg/weights"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default $ENGAGE_CONFIG)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	log.Setup(log.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log.L()); err != nil {
		log.Error("engaged stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	optimizer, closeStores, err := openOptimizer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := optimizer.Close(shutdownCtx); err != nil {
			logger.Error("failed to flush training samples", "error", err)
		}
		closeStores()
	}()

	adapter, err := openInference(cfg, logger)
	if err != nil {
		return err
	}
	defer adapter.Close()

	extractor := vision.NewExtractor(cfg.Eyes)
	factory := func(contextName string) (*analyzer.Analyzer, error) {
		return analyzer.New(adapter, optimizer,
			analyzer.WithConfig(cfg.Analyzer),
			analyzer.WithContext(contextName),
			analyzer.WithEyeFeatures(extractor),
			analyzer.WithLightingMeter(extractor),
			analyzer.WithLogger(logger),
		)
	}
	registry := analyzer.NewRegistry(factory, cfg.Registry, logger)

	cfg.Server.DefaultContext = cfg.Analyzer.Context

	server := web.NewServer(cfg.Server, registry, optimizer,
		web.WithDecoder(decodeFrame),
		web.WithLogger(logger),
	)

	logger.Info("engaged starting",
		"addr", cfg.Server.Addr,
		"context", cfg.Analyzer.Context,
		"capabilities", fmt.Sprintf("%+v", adapter.Capabilities()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	return g.Wait()
}

// openOptimizer builds the profile and sample stores and loads
// persisted state into a new optimizer.
func openOptimizer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*weights.Optimizer, func(), error) {
	opts := []weights.Option{
		weights.WithConfig(cfg.Weights),
		weights.WithLogger(logger),
	}
	closeStores := func() {}

	st := cfg.Storage
	if st.RedisAddr != "" {
		store, err := weights.NewRedisStore(ctx, weights.RedisOptions{
			Addr:      st.RedisAddr,
			Password:  st.RedisPassword,
			DB:        st.RedisDB,
			KeyPrefix: st.RedisPrefix,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, weights.WithProfileStore(store))
		closeStores = func() { store.Close() }
	} else {
		store, err := weights.NewJSONStore(st.ProfilesPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, weights.WithProfileStore(store))
	}

	if st.SamplesPath != "" {
		samples, err := weights.OpenSQLiteSampleStore(ctx, st.SamplesPath, logger)
		if err != nil {
			closeStores()
			return nil, nil, err
		}
		opts = append(opts, weights.WithSampleStore(samples))
	}

	optimizer := weights.NewOptimizer(opts...)
	if err := optimizer.Load(ctx); err != nil {
		logger.Warn("some persisted weight state could not be loaded", "error", err)
	}
	return optimizer, closeStores, nil
}

// openInference chains every backend that could be loaded.
func openInference(cfg *config.Config, logger *slog.Logger) (*inference.Safe, error) {
	var backends []inference.Adapter

	yunet, err := cv.NewYuNet(cfg.Detection, logger)
	if err != nil {
		logger.Warn("face detector unavailable", "error", err)
	} else {
		backends = append(backends, yunet)
	}

	models, err := cv.NewModels(cfg.Models, logger)
	if err != nil {
		logger.Warn("analysis models unavailable", "error", err)
	} else {
		backends = append(backends, models)
	}

	chain, err := inference.NewChainWithLogger(logger, backends...)
	if err != nil {
		if errors.Is(err, inference.ErrBackendUnavailable) {
			return nil, fmt.Errorf("no inference backend could be loaded: %w", err)
		}
		return nil, err
	}

	return inference.NewSafe(chain,
		inference.WithMinConfidence(cfg.Detection.ConfidenceThresh),
		inference.WithTimeout(cfg.InferenceTimeout),
		inference.WithLogger(logger),
	), nil
}

func decodeFrame(data []byte) (inference.Frame, error) {
	frame, err := cv.Decode(data)
	if err != nil {
		return nil, err
	}
	return frame, nil
}
