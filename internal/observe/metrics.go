// Package observe holds the OpenTelemetry instruments recorded by the
// synthesis, cache and playback layers. Metrics are exported for Prometheus
// scraping only when a metrics address is configured; otherwise the global
// no-op provider swallows them.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dgnsrekt/readalong"

// Metrics holds every instrument the application records.
type Metrics struct {
	// SynthesisDuration tracks provider latency per segment.
	SynthesisDuration metric.Float64Histogram

	// ProviderRequests counts synthesis calls. Attributes: provider, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed synthesis calls. Attributes: provider, code.
	ProviderErrors metric.Int64Counter

	// CacheEvents counts clip cache activity. Attribute: event
	// (hit, miss, fill, stale, compress).
	CacheEvents metric.Int64Counter

	// SegmentsPlayed counts segments that played to completion. Attribute: mode.
	SegmentsPlayed metric.Int64Counter

	// CacheBytes tracks the bytes held by clip caches.
	CacheBytes metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30,
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("readalong.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("readalong.provider.requests",
		metric.WithDescription("Synthesis requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("readalong.provider.errors",
		metric.WithDescription("Synthesis errors by provider and error code."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvents, err = m.Int64Counter("readalong.cache.events",
		metric.WithDescription("Clip cache events by kind."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsPlayed, err = m.Int64Counter("readalong.segments.played",
		metric.WithDescription("Segments played to completion by playback mode."),
	); err != nil {
		return nil, err
	}
	if met.CacheBytes, err = m.Int64UpDownCounter("readalong.cache.bytes",
		metric.WithDescription("Bytes held by clip caches."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instruments, created on first use
// from the global meter provider. Call InitProvider before the first call if
// metrics should be exported.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest counts one synthesis request.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed synthesis request.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, code string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("code", code),
		),
	)
}

// RecordCacheEvent counts one cache event.
func (m *Metrics) RecordCacheEvent(ctx context.Context, event string) {
	m.CacheEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordSegmentPlayed counts one completed segment.
func (m *Metrics) RecordSegmentPlayed(ctx context.Context, mode string) {
	m.SegmentsPlayed.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
