package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-swap/internal/usecase"
)

// DefaultMaxBodyBytes bounds /runsync bodies: two base64 images.
const DefaultMaxBodyBytes = 32 << 20

// SwapRunner runs one swap invocation.
type SwapRunner interface {
	Run(ctx context.Context, input map[string]any) (string, usecase.Response)
}

// MetricsReader exposes the job log summary.
type MetricsReader interface {
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Options configures the router.
type Options struct {
	// Auth guards /runsync when non-nil.
	Auth         gin.HandlerFunc
	MaxBodyBytes int64
	Logger       *zap.Logger
}

type runRequest struct {
	ID    string         `json:"id"`
	Input map[string]any `json:"input"`
}

type runResponse struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Output usecase.Response `json:"output"`
}

// NewRouter builds the gin engine with compression, CORS and request logging.
func NewRouter(runner SwapRunner, metrics MetricsReader, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	RegisterRoutes(router, runner, metrics, opts)
	return router
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, runner SwapRunner, metrics MetricsReader, opts Options) {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "models": "ready"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		summary, err := metrics.GetMetricsSummary(c.Request.Context())
		if errors.Is(err, usecase.ErrMetricsDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job log disabled"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	run := []gin.HandlerFunc{}
	if opts.Auth != nil {
		run = append(run, opts.Auth)
	}
	run = append(run, func(c *gin.Context) {
		var body runRequest
		if status, err := decodeBody(c, maxBody, &body); err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		requestID, output := runner.Run(c.Request.Context(), body.Input)
		id := body.ID
		if id == "" {
			id = requestID
		}
		c.Header("X-Request-ID", requestID)
		c.JSON(http.StatusOK, runResponse{ID: id, Status: "COMPLETED", Output: output})
	})
	router.POST("/runsync", run...)
}

func decodeBody(c *gin.Context, maxBody int64, dst *runRequest) (int, error) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return http.StatusBadRequest, errors.New("failed to read request body")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return http.StatusBadRequest, errors.New("request body must be a JSON object")
	}
	return 0, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
