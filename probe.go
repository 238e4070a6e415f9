package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/face-swap/internal/grpchealth"
)

var (
	probeAddr    string
	probeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check a running worker's gRPC health service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		addr := probeAddr
		if addr == "" {
			addr = cfg.GRPCHealthAddr
		}
		if addr == "" {
			return fmt.Errorf("no address: pass --addr or set GRPC_HEALTH_ADDR")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()
		status, err := grpchealth.Check(ctx, addr, grpchealth.Service, logger)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status.String())
		if status != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("worker at %s is %s", addr, status)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeAddr, "addr", "", "Health service address (default GRPC_HEALTH_ADDR)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 5*time.Second, "Probe timeout")
	rootCmd.AddCommand(probeCmd)
}
