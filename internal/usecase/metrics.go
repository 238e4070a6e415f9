package usecase

import (
	"context"
	"errors"
)

// ErrMetricsDisabled is returned when no job log is configured.
var ErrMetricsDisabled = errors.New("usecase: job log disabled")

// MetricsSummary represents aggregated swap job insights.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	SuccessfulRequests         int64   `json:"successful_requests"`
	SuccessRate                float64 `json:"success_rate"`
	CacheHits                  int64   `json:"cache_hits"`
	AverageFacesSwapped        float64 `json:"average_faces_swapped"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates swap metrics from the persisted job log.
func (s *SwapService) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if s.repo == nil {
		return nil, ErrMetricsDisabled
	}
	aggregation, err := s.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		SuccessfulRequests:         aggregation.SuccessCount,
		CacheHits:                  aggregation.CacheHitCount,
		AverageFacesSwapped:        aggregation.AverageFacesSwapped,
		AverageProcessingLatencyMs: aggregation.AverageLatencyMs,
	}
	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}
