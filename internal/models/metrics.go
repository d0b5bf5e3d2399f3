package models

import "time"

// SystemMetrics is a point-in-time summary of instrumentation counters.
type SystemMetrics struct {
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	CacheHits                uint64            `json:"cache_hits"`
	CacheMisses              uint64            `json:"cache_misses"`
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	UpstreamFetches          uint64            `json:"upstream_fetches"`
	AverageUpstreamMs        float64           `json:"average_upstream_ms"`
	ProxyOutcomes            map[string]uint64 `json:"proxy_outcomes"`
	CardsGenerated           uint64            `json:"cards_generated"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
