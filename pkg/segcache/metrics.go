package segcache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("segment-cutout.segcache")
	meter  = otel.Meter("segment-cutout.segcache")
)

var (
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	cacheStores        metric.Int64Counter
	cacheEvictions     metric.Int64Counter
	cacheCandidates    metric.Int64Histogram
	cacheLookupLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"segcache_hits_total",
			metric.WithDescription("Total number of lookups that found a similar mask"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"segcache_misses_total",
			metric.WithDescription("Total number of lookups without a similar mask"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheStores, err = meter.Int64Counter(
			"segcache_stores_total",
			metric.WithDescription("Total number of stored masks"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheEvictions, err = meter.Int64Counter(
			"segcache_evictions_total",
			metric.WithDescription("Total number of evicted records"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheCandidates, err = meter.Int64Histogram(
			"segcache_candidates",
			metric.WithDescription("Number of bucket candidates compared per lookup"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheLookupLatency, err = meter.Float64Histogram(
			"segcache_lookup_duration_seconds",
			metric.WithDescription("Duration of similarity lookups"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordStore(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheStores.Add(ctx, 1)
}

func recordEviction(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheEvictions.Add(ctx, 1)
}

func recordCandidates(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheCandidates.Record(ctx, int64(n))
}

func recordLookupLatency(ctx context.Context, d time.Duration, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheLookupLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Bool("hit", hit)),
	)
}

// startSpan creates a span for a cache operation.
func startSpan(ctx context.Context, operation string, threshold float64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "SegmentCache."+operation,
		trace.WithAttributes(
			attribute.String("segcache.operation", operation),
			attribute.Float64("segcache.threshold", threshold),
		),
	)
}

func setSpanResult(span trace.Span, candidates, matches int) {
	span.SetAttributes(
		attribute.Int("segcache.candidates", candidates),
		attribute.Int("segcache.matches", matches),
	)
}
