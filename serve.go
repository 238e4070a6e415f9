package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/face-swap/internal/auth"
	"github.com/example/face-swap/internal/config"
	"github.com/example/face-swap/internal/grpchealth"
	"github.com/example/face-swap/internal/handlers"
	"github.com/example/face-swap/internal/imagecodec"
	"github.com/example/face-swap/internal/repository"
	"github.com/example/face-swap/internal/usecase"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the models once and serve /runsync until SIGINT or SIGTERM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context(), cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	// The health service starts before the models so orchestrators can
	// watch the cold start.
	var health *grpchealth.Server
	if cfg.GRPCHealthAddr != "" {
		listener, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
		health = grpchealth.NewServer(logger)
		go func() {
			if err := health.Serve(listener); err != nil {
				logger.Error("grpc health server failed", zap.Error(err))
			}
		}()
		defer health.Stop()
	}

	models, err := buildModels(cfg, logger)
	if err != nil {
		return err
	}
	defer closeModels(models, logger)
	if health != nil {
		health.MarkServing()
	}

	var repo usecase.SwapLogStore
	if cfg.DatabaseDSN != "" {
		db, err := repository.OpenDatabase(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
		if err != nil {
			return err
		}
		swapLogs := repository.NewSwapLogRepository(db, logger)
		if err := swapLogs.AutoMigrate(ctx); err != nil {
			return err
		}
		repo = swapLogs
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		client, err := initRedis(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		cache = usecase.NewRedisCache(client)
	}

	codec := imagecodec.New(cfg.JPEGQuality, cfg.MaxInputSide)
	orchestrator := usecase.NewOrchestrator(models, codec, logger)
	service := usecase.NewSwapService(orchestrator, repo, cache, cfg.CacheTTL, logger)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(service, service, handlers.Options{
		Auth:         auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience),
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face swap worker listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Bool("auth", cfg.JWTSecret != ""),
		zap.Bool("job_log", repo != nil),
		zap.Bool("cache", cache != nil),
	)
	return serveHTTPServer(server, cfg.ShutdownTimeout, logger)
}

func initRedis(ctx context.Context, addr string, logger *zap.Logger) (*redis.Client, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		logger.Error("redis connection failed", zap.Error(err), zap.String("addr", addr))
		return nil, err
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
