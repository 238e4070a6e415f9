package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/face-swap/internal/imagecodec"
	"github.com/example/face-swap/internal/usecase"
)

type swapOptions struct {
	SourcePath    string
	TargetPath    string
	OutputPath    string
	FacePick      string
	MinConfidence float64
}

var swapOpts swapOptions

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap the source face into a target image on disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		models, err := buildModels(cfg, logger)
		if err != nil {
			return err
		}
		defer closeModels(models, logger)

		orchestrator := usecase.NewOrchestrator(models, imagecodec.New(cfg.JPEGQuality, cfg.MaxInputSide), logger)
		return runSwap(cmd.Context(), orchestrator, swapOpts, cmd.OutOrStdout())
	},
}

func init() {
	swapCmd.Flags().StringVarP(&swapOpts.SourcePath, "source", "s", "", "Image holding the identity to transfer")
	swapCmd.Flags().StringVarP(&swapOpts.TargetPath, "target", "t", "", "Image whose faces are replaced")
	swapCmd.Flags().StringVarP(&swapOpts.OutputPath, "out", "o", "swapped.jpg", "Output JPEG path")
	swapCmd.Flags().StringVar(&swapOpts.FacePick, "face-pick", "largest", "Target faces to replace: largest, first or all")
	swapCmd.Flags().Float64Var(&swapOpts.MinConfidence, "min-confidence", usecase.DefaultMinConfidence, "Minimum detection score for source and target faces")
	_ = swapCmd.MarkFlagRequired("source")
	_ = swapCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(swapCmd)
}

// runSwap sends one request through the same pipeline the worker serves.
func runSwap(ctx context.Context, orchestrator *usecase.Orchestrator, opts swapOptions, out io.Writer) error {
	source, err := os.ReadFile(opts.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to read source image: %w", err)
	}
	target, err := os.ReadFile(opts.TargetPath)
	if err != nil {
		return fmt.Errorf("failed to read target image: %w", err)
	}

	requestID := uuid.NewString()
	outcome := orchestrator.Handle(ctx, requestID, map[string]any{
		usecase.FieldSourceFace:    base64.StdEncoding.EncodeToString(source),
		usecase.FieldTargetImage:   base64.StdEncoding.EncodeToString(target),
		usecase.FieldFacePick:      opts.FacePick,
		usecase.FieldMinConfidence: opts.MinConfidence,
	})
	if !outcome.Response.OK() {
		return errors.New(outcome.Response.Message)
	}

	data, err := base64.StdEncoding.DecodeString(outcome.Response.ImageB64)
	if err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	logger.Debug("swap written", zap.String("request_id", requestID), zap.String("path", opts.OutputPath))
	fmt.Fprintf(out, "swapped %d face(s) into %s in %s\n", outcome.FacesSwapped, opts.OutputPath, outcome.Duration.Round(time.Millisecond))
	return nil
}
