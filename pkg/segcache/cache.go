// Package segcache remembers results computed for segmentation masks and
// finds them again for masks that are merely similar, not identical.
//
// # Lookup
//
// Every mask gets a signature of NumHashes integers, each built from
// HashSize pixels sampled at fixed positions. Records are filed under one
// bucket per hash value and one per adjacent pair of hash values. A lookup
// gathers every record sharing any bucket with the query and ranks them by
// exact IoU over the full mask, so the signature only shortlists.
//
// # Thread Safety
//
// Safe for concurrent use. Stores take the write lock, lookups the read
// lock.
package segcache

import (
	"cmp"
	"container/list"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/segment-cutout/pkg/mask"
)

// Cache maps masks to results of type T.
type Cache[T any] struct {
	mu      sync.RWMutex
	records map[string]*record[T]
	buckets map[string][]*record[T]
	lru     *list.List
	nextID  uint64
	options Options
	logger  *zap.Logger

	hits      int64
	misses    int64
	stores    int64
	evictions int64
}

type record[T any] struct {
	id        string
	mask      mask.Mask
	result    T
	signature []uint64
	storedAt  time.Time

	// lruElement is the position in the LRU list, nil when unbounded.
	lruElement *list.Element
}

// Match is a stored record similar to a query mask. Mask is shared with the
// cache and must not be modified.
type Match[T any] struct {
	ID       string
	Result   T
	Mask     mask.Mask
	IoU      float64
	StoredAt time.Time
}

// Stats contains statistics about the cache.
type Stats struct {
	Records   int
	Buckets   int
	Hits      int64
	Misses    int64
	Stores    int64
	Evictions int64
}

// New creates an empty cache.
func New[T any](opts ...Option) *Cache[T] {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Cache[T]{
		records: make(map[string]*record[T]),
		buckets: make(map[string][]*record[T]),
		lru:     list.New(),
		options: options,
		logger:  options.Logger,
	}
}

// Signature computes the sketch of m: for hash h, pixel
// (h*12345 + i*7919) mod len is shifted in for i in [0, HashSize).
func (c *Cache[T]) Signature(m mask.Mask) []uint64 {
	n := m.Len()
	sig := make([]uint64, c.options.NumHashes)
	if n == 0 {
		return sig
	}
	for h := range sig {
		seed := h * 12345
		var v uint64
		for i := 0; i < c.options.HashSize; i++ {
			v <<= 1
			if m.Data[(seed+i*7919)%n] > 0 {
				v |= 1
			}
		}
		sig[h] = v
	}
	return sig
}

// bucketKeys returns "h{i}_{v}" for every hash and "p{i}_{v}_{w}" for every
// adjacent pair.
func bucketKeys(sig []uint64) []string {
	keys := make([]string, 0, 2*len(sig))
	for i, v := range sig {
		keys = append(keys, "h"+strconv.Itoa(i)+"_"+strconv.FormatUint(v, 10))
	}
	for i := 0; i+1 < len(sig); i++ {
		keys = append(keys, fmt.Sprintf("p%d_%d_%d", i, sig[i], sig[i+1]))
	}
	return keys
}

// Store files a copy of m with its result and returns the new record id.
func (c *Cache[T]) Store(ctx context.Context, m mask.Mask, result T) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("failed to store mask: %w", err)
	}

	rec := &record[T]{
		mask:      m.Clone(),
		result:    result,
		signature: c.Signature(m),
		storedAt:  time.Now(),
	}
	keys := bucketKeys(rec.signature)

	c.mu.Lock()
	c.nextID++
	rec.id = "cache_" + strconv.FormatUint(c.nextID, 10)

	evicted := 0
	if c.options.MaxRecords > 0 {
		for len(c.records) >= c.options.MaxRecords {
			if !c.evictLRULocked() {
				break
			}
			evicted++
		}
		rec.lruElement = c.lru.PushFront(rec)
	}

	c.records[rec.id] = rec
	for _, k := range keys {
		c.buckets[k] = append(c.buckets[k], rec)
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.stores, 1)
	atomic.AddInt64(&c.evictions, int64(evicted))
	recordStore(ctx)
	for i := 0; i < evicted; i++ {
		recordEviction(ctx)
	}

	c.logger.Debug("stored mask",
		zap.String("id", rec.id),
		zap.Int("width", m.Width),
		zap.Int("height", m.Height),
		zap.Int("evicted", evicted),
	)
	return rec.id, nil
}

// FindSimilar returns every stored record whose IoU with m is at least
// threshold, best first. Records sharing no bucket with m are never
// considered. A candidate of a different size fails the lookup with
// mask.ErrDimensionMismatch.
func (c *Cache[T]) FindSimilar(ctx context.Context, m mask.Mask, threshold float64) ([]Match[T], error) {
	ctx, span := startSpan(ctx, "FindSimilar", threshold)
	defer span.End()

	matches, candidates, err := c.findSimilar(m, threshold)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	recordCandidates(ctx, candidates)
	setSpanResult(span, candidates, len(matches))
	return matches, nil
}

func (c *Cache[T]) findSimilar(m mask.Mask, threshold float64) ([]Match[T], int, error) {
	if err := m.Validate(); err != nil {
		return nil, 0, err
	}
	keys := bucketKeys(c.Signature(m))

	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[*record[T]]struct{})
	var candidates []*record[T]
	for _, k := range keys {
		for _, rec := range c.buckets[k] {
			if _, ok := seen[rec]; ok {
				continue
			}
			seen[rec] = struct{}{}
			candidates = append(candidates, rec)
		}
	}

	var matches []Match[T]
	for _, rec := range candidates {
		iou, err := mask.IoU(m, rec.mask)
		if err != nil {
			return nil, len(candidates), fmt.Errorf("failed to compare with %s: %w", rec.id, err)
		}
		c.logger.Debug("compared candidate",
			zap.String("id", rec.id),
			zap.Float64("iou", iou),
		)
		if iou >= threshold {
			matches = append(matches, Match[T]{
				ID:       rec.id,
				Result:   rec.result,
				Mask:     rec.mask,
				IoU:      iou,
				StoredAt: rec.storedAt,
			})
		}
	}

	slices.SortStableFunc(matches, func(a, b Match[T]) int {
		return cmp.Compare(b.IoU, a.IoU)
	})
	return matches, len(candidates), nil
}

// FindBestMatch returns the most similar record with IoU at least
// threshold. The boolean is false on a miss.
func (c *Cache[T]) FindBestMatch(ctx context.Context, m mask.Mask, threshold float64) (Match[T], bool, error) {
	ctx, span := startSpan(ctx, "FindBestMatch", threshold)
	defer span.End()

	start := time.Now()
	matches, candidates, err := c.findSimilar(m, threshold)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		return Match[T]{}, false, err
	}

	hit := len(matches) > 0
	recordCandidates(ctx, candidates)
	recordLookupLatency(ctx, elapsed, hit)
	setSpanResult(span, candidates, len(matches))

	c.logger.Debug("segment cache lookup",
		zap.Duration("elapsed", elapsed),
		zap.Int("candidates", candidates),
		zap.Bool("hit", hit),
	)

	if !hit {
		atomic.AddInt64(&c.misses, 1)
		recordMiss(ctx)
		return Match[T]{}, false, nil
	}

	atomic.AddInt64(&c.hits, 1)
	recordHit(ctx)
	c.touch(matches[0].ID)
	return matches[0], true, nil
}

// Get returns the record stored under id.
func (c *Cache[T]) Get(id string) (Match[T], bool) {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	if !ok {
		return Match[T]{}, false
	}
	c.touch(id)
	return Match[T]{
		ID:       rec.id,
		Result:   rec.result,
		Mask:     rec.mask,
		IoU:      1,
		StoredAt: rec.storedAt,
	}, true
}

// Len returns the number of stored records.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Clear removes every record. Ids keep increasing across a Clear.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = make(map[string]*record[T])
	c.buckets = make(map[string][]*record[T])
	c.lru.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	records, buckets := len(c.records), len(c.buckets)
	c.mu.RUnlock()

	return Stats{
		Records:   records,
		Buckets:   buckets,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Stores:    atomic.LoadInt64(&c.stores),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// touch moves a record to the front of the LRU list.
func (c *Cache[T]) touch(id string) {
	if c.options.MaxRecords == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[id]; ok && rec.lruElement != nil {
		c.lru.MoveToFront(rec.lruElement)
	}
}

// evictLRULocked drops the least recently used record from the record table
// and from all of its buckets (must hold lock).
func (c *Cache[T]) evictLRULocked() bool {
	elem := c.lru.Back()
	if elem == nil {
		return false
	}
	rec := elem.Value.(*record[T])
	c.lru.Remove(elem)
	delete(c.records, rec.id)

	for _, k := range bucketKeys(rec.signature) {
		bucket := slices.DeleteFunc(c.buckets[k], func(r *record[T]) bool { return r == rec })
		if len(bucket) == 0 {
			delete(c.buckets, k)
		} else {
			c.buckets[k] = bucket
		}
	}

	c.logger.Debug("evicted record", zap.String("id", rec.id))
	return true
}
