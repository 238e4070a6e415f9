package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/face-swap/internal/config"
	"github.com/example/face-swap/internal/detector"
	"github.com/example/face-swap/internal/faces"
	"github.com/example/face-swap/internal/inference"
	"github.com/example/face-swap/internal/logging"
	"github.com/example/face-swap/internal/swapper"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:     "faceswap",
	Short:   "Face swap inference worker",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildModels is the cold start: the runtime, both face models and the
// generator are loaded once and shared by every request.
func buildModels(cfg config.Config, logger *zap.Logger) (*faces.Models, error) {
	if err := inference.Initialize(inference.Options{
		LibraryPath: cfg.ORTLibraryPath,
		UseCUDA:     cfg.UseCUDA,
	}, logger); err != nil {
		return nil, err
	}

	analyzer, err := detector.NewAnalyzer(detector.Options{
		DetectorPath:    cfg.DetectorModelPath(),
		RecognitionPath: cfg.RecognitionModelPath(),
		InputSize:       cfg.DetectorSize,
		ScoreThreshold:  float32(cfg.DetectorThreshold),
		NMSThreshold:    float32(cfg.NMSThreshold),
	}, logger)
	if err != nil {
		inference.Shutdown()
		return nil, fmt.Errorf("failed to load detector %s: %w", cfg.DetectorName, err)
	}

	sw, err := swapper.NewInswapper(cfg.SwapModelPath(), cfg.EmapPath, logger)
	if err != nil {
		analyzer.Close()
		inference.Shutdown()
		return nil, fmt.Errorf("failed to load swap model %s: %w", cfg.SwapModel, err)
	}

	models, err := faces.NewModels(analyzer, sw)
	if err != nil {
		return nil, err
	}
	logger.Info("models ready",
		zap.String("detector", cfg.DetectorName),
		zap.Int("det_size", cfg.DetectorSize),
		zap.String("swap_model", cfg.SwapModel),
	)
	return models, nil
}

func closeModels(models *faces.Models, logger *zap.Logger) {
	if err := models.Close(); err != nil {
		logger.Warn("failed to release models", zap.Error(err))
	}
	if err := inference.Shutdown(); err != nil {
		logger.Warn("failed to shut down onnxruntime", zap.Error(err))
	}
}
