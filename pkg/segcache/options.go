package segcache

import "go.uber.org/zap"

const (
	// DefaultNumHashes is the number of independent hash functions.
	DefaultNumHashes = 16

	// DefaultHashSize is the number of pixels sampled per hash.
	DefaultHashSize = 64

	// DefaultSimilarityThreshold is the IoU a candidate needs to count as
	// the same object.
	DefaultSimilarityThreshold = 0.9
)

// Options configures a Cache.
type Options struct {
	// NumHashes is the signature length.
	// Default: 16
	NumHashes int

	// HashSize is the number of sampled pixels per hash. Each hash is a
	// uint64, so with HashSize above 64 only the last 64 samples influence
	// it. At the default every one of the 64 samples counts; a 32-bit shift
	// register would keep only the last 32, which gives different buckets
	// for the same mask.
	// Default: 64
	HashSize int

	// MaxRecords caps the number of stored records. The least recently
	// stored or matched record is evicted first. Zero keeps every record for
	// the lifetime of the cache.
	// Default: 0
	MaxRecords int

	// Logger receives debug output about candidates and lookup timing.
	// Default: no-op
	Logger *zap.Logger
}

// DefaultOptions returns the defaults used by New.
func DefaultOptions() Options {
	return Options{
		NumHashes:  DefaultNumHashes,
		HashSize:   DefaultHashSize,
		MaxRecords: 0,
		Logger:     zap.NewNop(),
	}
}

// Option is a functional option for configuring a Cache.
type Option func(*Options)

// WithNumHashes sets the number of hash functions.
func WithNumHashes(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.NumHashes = n
		}
	}
}

// WithHashSize sets the number of pixels sampled per hash.
func WithHashSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.HashSize = n
		}
	}
}

// WithMaxRecords enables LRU eviction once n records are stored. Zero or a
// negative n means unbounded.
func WithMaxRecords(n int) Option {
	return func(o *Options) {
		o.MaxRecords = max(0, n)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
