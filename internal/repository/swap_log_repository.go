package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-swap/internal/logging"
)

// SwapLog is one persisted swap invocation. Image payloads are never stored,
// only their digests.
type SwapLog struct {
	ID            uint      `gorm:"primaryKey"`
	RequestID     string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Status        string    `gorm:"column:status;size:16;index"`
	ErrorKind     string    `gorm:"column:error_kind;size:32"`
	Message       string    `gorm:"column:message;type:text"`
	FacePick      string    `gorm:"column:face_pick;size:32"`
	MinConfidence float64   `gorm:"column:min_confidence"`
	FacesSwapped  int       `gorm:"column:faces_swapped"`
	LatencyMs     int64     `gorm:"column:latency_ms"`
	CacheHit      bool      `gorm:"column:cache_hit"`
	SourceSHA1    string    `gorm:"column:source_sha1;size:40"`
	TargetSHA1    string    `gorm:"column:target_sha1;size:40"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (SwapLog) TableName() string {
	return "swap_logs"
}

// MetricsAggregation is the raw aggregate over all swap logs.
type MetricsAggregation struct {
	TotalCount          int64
	SuccessCount        int64
	CacheHitCount       int64
	AverageFacesSwapped float64
	AverageLatencyMs    float64
}

// SwapLogRepository persists swap logs with retries on transient errors.
type SwapLogRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewSwapLogRepository creates a new repository instance.
func NewSwapLogRepository(db *gorm.DB, logger *zap.Logger) *SwapLogRepository {
	return &SwapLogRepository{
		db:             db,
		logger:         logger.Named("swap_log_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *SwapLogRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&SwapLog{})
	})
}

// SaveLog persists a swap log entry.
func (r *SwapLogRepository) SaveLog(ctx context.Context, log *SwapLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID loads the log of one invocation.
func (r *SwapLogRepository) FindByRequestID(ctx context.Context, requestID string) (*SwapLog, error) {
	var log SwapLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals and averages over every stored log.
func (r *SwapLogRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).Model(&SwapLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS success_count,
				COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0) AS cache_hit_count,
				COALESCE(AVG(faces_swapped), 0) AS average_faces_swapped,
				COALESCE(AVG(latency_ms), 0) AS average_latency_ms`, "success").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *SwapLogRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)

	attempts := r.retryAttempts
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
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) || !isTransient(err) {
			break
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransient(err error) bool {
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
