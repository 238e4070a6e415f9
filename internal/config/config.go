// Package config reads the worker's process-wide settings from the
// environment. Settings are read once at startup and never per request.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-level setting of the worker.
type Config struct {
	LogLevel string

	// Model state
	ModelsDir         string
	DetectorName      string
	DetectorSize      int
	DetectorThreshold float64
	NMSThreshold      float64
	SwapModel         string
	EmapPath          string
	ORTLibraryPath    string
	UseCUDA           bool

	// Image codec
	JPEGQuality int
	// MaxInputSide > 0 downscales larger inputs before detection and
	// swapping; the result is scaled back to the target's original size.
	MaxInputSide int

	// Transport
	HTTPAddr        string
	GRPCHealthAddr  string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	JWTSecret       string
	JWTAudience     string

	// Optional infrastructure
	DatabaseDriver string
	DatabaseDSN    string
	RedisAddr      string
	CacheTTL       time.Duration
}

// DetectorModelPath is the SCRFD weights inside the detector pack.
func (c Config) DetectorModelPath() string {
	return filepath.Join(c.ModelsDir, c.DetectorName, "det_10g.onnx")
}

// RecognitionModelPath is the ArcFace weights inside the detector pack.
func (c Config) RecognitionModelPath() string {
	return filepath.Join(c.ModelsDir, c.DetectorName, "w600k_r50.onnx")
}

// SwapModelPath resolves IFACE_SWAP_MODEL against the models directory.
func (c Config) SwapModelPath() string {
	if filepath.IsAbs(c.SwapModel) {
		return c.SwapModel
	}
	return filepath.Join(c.ModelsDir, c.SwapModel)
}

// Load reads the configuration; malformed numeric values are errors.
func Load() (Config, error) {
	r := &reader{}
	cfg := Config{
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ModelsDir:         getEnv("MODELS_DIR", "models"),
		DetectorName:      getEnv("IFACE_DET_NAME", "buffalo_l"),
		DetectorSize:      r.int("IFACE_DET_SIZE", 640),
		DetectorThreshold: r.float("IFACE_DET_THRESHOLD", 0.2),
		NMSThreshold:      r.float("IFACE_NMS_THRESHOLD", 0.4),
		SwapModel:         getEnv("IFACE_SWAP_MODEL", "inswapper_128.onnx"),
		ORTLibraryPath:    os.Getenv("ORT_LIBRARY_PATH"),
		UseCUDA:           r.bool("ORT_USE_CUDA", true),
		JPEGQuality:       r.int("JPEG_QUALITY", 95),
		MaxInputSide:      r.int("MAX_INPUT_SIDE", 0),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		GRPCHealthAddr:    os.Getenv("GRPC_HEALTH_ADDR"),
		MaxBodyBytes:      int64(r.int("MAX_BODY_BYTES", 32<<20)),
		ShutdownTimeout:   r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAudience:       strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		DatabaseDriver:    strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		CacheTTL:          r.duration("CACHE_TTL", 10*time.Minute),
	}
	cfg.EmapPath = getEnv("IFACE_EMAP_PATH", filepath.Join(cfg.ModelsDir, "emap.bin"))

	if r.err != nil {
		return Config{}, r.err
	}
	if cfg.DetectorSize <= 0 || cfg.DetectorSize%32 != 0 {
		return Config{}, fmt.Errorf("IFACE_DET_SIZE must be a positive multiple of 32, got %d", cfg.DetectorSize)
	}
	switch cfg.DatabaseDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return Config{}, fmt.Errorf("DATABASE_DRIVER must be postgres, mysql or sqlite, got %q", cfg.DatabaseDriver)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// reader keeps the first parse error so Load can report it once.
type reader struct {
	err error
}

func (r *reader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (r *reader) int(key string, fallback int) int {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return n
}

func (r *reader) float(key string, fallback float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return f
}

func (r *reader) bool(key string, fallback bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	r.fail(key, v, fmt.Errorf("not a boolean"))
	return fallback
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return d
}
