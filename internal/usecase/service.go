package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-swap/internal/logging"
	"github.com/example/face-swap/internal/repository"
)

// SwapLogStore defines the job log operations needed by the service.
type SwapLogStore interface {
	SaveLog(ctx context.Context, log *repository.SwapLog) error
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// SwapService wraps the orchestrator with request IDs, an optional response
// cache and an optional job log. Neither side effect can change a response.
type SwapService struct {
	orchestrator   *Orchestrator
	repo           SwapLogStore
	cache          Cache
	cacheTTL       time.Duration
	logger         *zap.Logger
	newRequestID   func() string
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewSwapService constructs the service. repo and cache may be nil.
func NewSwapService(orchestrator *Orchestrator, repo SwapLogStore, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *SwapService {
	return &SwapService{
		orchestrator:   orchestrator,
		repo:           repo,
		cache:          cache,
		cacheTTL:       cacheTTL,
		logger:         logger.Named("swap_service"),
		newRequestID:   uuid.NewString,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Run handles one invocation and returns its request ID and response.
func (s *SwapService) Run(ctx context.Context, input map[string]any) (string, Response) {
	requestID := s.newRequestID()
	start := time.Now()

	req, swapErr := ParseRequest(input)
	if swapErr != nil {
		outcome := s.orchestrator.finish(requestID, start, 0, swapErr, "")
		s.record(ctx, requestID, nil, outcome, false)
		return requestID, outcome.Response
	}

	key := cacheKey(req)
	if cached, ok := s.lookup(ctx, requestID, key); ok {
		s.record(ctx, requestID, req, Outcome{Response: cached, Duration: time.Since(start)}, true)
		return requestID, cached
	}

	outcome := s.orchestrator.Execute(ctx, requestID, req)
	if outcome.Response.OK() {
		s.store(ctx, requestID, key, outcome.Response)
	}
	s.record(ctx, requestID, req, outcome, false)
	return requestID, outcome.Response
}

func (s *SwapService) lookup(ctx context.Context, requestID, key string) (Response, bool) {
	if s.cache == nil {
		return Response{}, false
	}
	var raw string
	err := s.withRedisRetry(ctx, requestID, "cache.get.response", func() error {
		value, err := s.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !IsMiss(err) {
			logging.WithOperation(s.logger, "usecase.cache_lookup", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return Response{}, false
	}

	var cached Response
	if err := json.Unmarshal([]byte(raw), &cached); err != nil || !cached.OK() {
		logging.WithOperation(s.logger, "usecase.cache_lookup", requestID).Warn("discarding unreadable cache entry", zap.Error(err))
		return Response{}, false
	}
	return cached, true
}

func (s *SwapService) store(ctx context.Context, requestID, key string, resp Response) {
	if s.cache == nil {
		return
	}
	serialized, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.withRedisRetry(ctx, requestID, "cache.set.response", func() error {
		return s.cache.Set(ctx, key, string(serialized), s.cacheTTL)
	}); err != nil {
		logging.WithOperation(s.logger, "usecase.cache_store", requestID).Warn("failed to cache response", zap.Error(err))
	}
}

func (s *SwapService) record(ctx context.Context, requestID string, req *SwapRequest, outcome Outcome, cacheHit bool) {
	if s.repo == nil {
		return
	}
	log := &repository.SwapLog{
		RequestID:    requestID,
		Status:       outcome.Response.Status,
		Message:      outcome.Response.Message,
		FacesSwapped: outcome.FacesSwapped,
		LatencyMs:    outcome.Duration.Milliseconds(),
		CacheHit:     cacheHit,
		CreatedAt:    time.Now().UTC(),
	}
	if outcome.Err != nil {
		log.ErrorKind = string(outcome.Err.Kind)
	}
	if req != nil {
		log.FacePick = string(req.FacePick)
		log.MinConfidence = req.MinConfidence
		log.SourceSHA1 = digest(req.SourceFace)
		log.TargetSHA1 = digest(req.TargetImage)
	}
	if err := s.repo.SaveLog(ctx, log); err != nil {
		logging.WithOperation(s.logger, "usecase.record", requestID).Error("failed to persist swap log", zap.Error(err))
	}
}

func (s *SwapService) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, requestID)

	attempts := s.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if IsMiss(err) || !isTransientError(err) {
			break
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}

// cacheKey identifies a request by everything that influences its output.
func cacheKey(req *SwapRequest) string {
	h := sha1.New()
	for _, part := range []string{
		req.SourceFace,
		req.TargetImage,
		string(req.FacePick),
		strconv.FormatFloat(req.MinConfidence, 'g', -1, 64),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "swap:" + hex.EncodeToString(h.Sum(nil))
}

func digest(payload string) string {
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
