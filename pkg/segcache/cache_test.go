package segcache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/menta2k/segment-cutout/pkg/mask"
)

type segmentResult struct {
	Label string
	Paths []string
}

func createTestMask(t testing.TB, width, height, x0, y0, x1, y1 int) mask.Mask {
	t.Helper()
	m, err := mask.Empty(width, height)
	require.NoError(t, err)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.Data[y*width+x] = 255
		}
	}
	return m
}

// perturb clears up to n foreground pixels of m that the first hash never
// samples, so both masks keep sharing that bucket.
func perturb[T any](t *testing.T, c *Cache[T], m mask.Mask, n int) mask.Mask {
	t.Helper()
	sampled := make(map[int]bool)
	for i := 0; i < c.options.HashSize; i++ {
		sampled[(i*7919)%m.Len()] = true
	}

	out := m.Clone()
	for i := range out.Data {
		if n == 0 {
			break
		}
		if out.Data[i] > 0 && !sampled[i] {
			out.Data[i] = 0
			n--
		}
	}
	require.Zero(t, n, "not enough unsampled foreground pixels")
	return out
}

func TestNew(t *testing.T) {
	c := New[string]()
	require.NotNil(t, c)
	assert.Equal(t, DefaultNumHashes, c.options.NumHashes)
	assert.Equal(t, DefaultHashSize, c.options.HashSize)
	assert.Zero(t, c.options.MaxRecords)
	assert.Zero(t, c.Len())
}

func TestOptions(t *testing.T) {
	c := New[int](WithNumHashes(4), WithHashSize(32), WithMaxRecords(10), WithLogger(zaptest.NewLogger(t)))
	assert.Equal(t, 4, c.options.NumHashes)
	assert.Equal(t, 32, c.options.HashSize)
	assert.Equal(t, 10, c.options.MaxRecords)

	ignored := New[int](WithNumHashes(0), WithHashSize(-1), WithMaxRecords(-3), WithLogger(nil))
	assert.Equal(t, DefaultNumHashes, ignored.options.NumHashes)
	assert.Equal(t, DefaultHashSize, ignored.options.HashSize)
	assert.Zero(t, ignored.options.MaxRecords)
	assert.NotNil(t, ignored.logger)
}

func TestSignature(t *testing.T) {
	c := New[int]()
	m := createTestMask(t, 50, 40, 10, 10, 30, 30)

	sig := c.Signature(m)
	assert.Len(t, sig, DefaultNumHashes)
	assert.Equal(t, sig, c.Signature(m.Clone()))

	full := createTestMask(t, 10, 10, 0, 0, 10, 10)
	for _, v := range c.Signature(full) {
		assert.Equal(t, ^uint64(0), v)
	}

	empty := createTestMask(t, 10, 10, 0, 0, 0, 0)
	for _, v := range c.Signature(empty) {
		assert.Zero(t, v)
	}
}

func TestSignatureSamplePositions(t *testing.T) {
	c := New[int](WithNumHashes(2), WithHashSize(3))
	m := createTestMask(t, 100, 1, 0, 0, 0, 0)
	// hash 1 samples 12345%100=45, 20264%100=64, 28183%100=83
	m.Data[45] = 1
	m.Data[83] = 1

	sig := c.Signature(m)
	assert.Equal(t, uint64(0), sig[0])
	assert.Equal(t, uint64(0b101), sig[1])
}

func TestSignatureKeepsAllSixtyFourSamples(t *testing.T) {
	c := New[int](WithNumHashes(1))
	m := createTestMask(t, 1000, 1, 0, 0, 0, 0)
	// sample 0 of hash 0 is pixel 0 and ends up in the top bit
	m.Data[0] = 1

	assert.Equal(t, uint64(1)<<63, c.Signature(m)[0])

	// a 65th sample shifts the first one out
	wide := New[int](WithNumHashes(1), WithHashSize(65))
	assert.Equal(t, uint64(0), wide.Signature(m)[0])
}

func TestBucketKeys(t *testing.T) {
	assert.Equal(t, []string{"h0_5", "h1_7", "h2_0", "p0_5_7", "p1_7_0"}, bucketKeys([]uint64{5, 7, 0}))
	assert.Equal(t, []string{"h0_9"}, bucketKeys([]uint64{9}))
}

func TestStoreAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	c := New[string]()
	m := createTestMask(t, 20, 20, 2, 2, 12, 12)

	id1, err := c.Store(ctx, m, "a")
	require.NoError(t, err)
	id2, err := c.Store(ctx, m, "b")
	require.NoError(t, err)
	assert.Equal(t, "cache_1", id1)
	assert.Equal(t, "cache_2", id2)

	c.Clear()
	assert.Zero(t, c.Len())
	id3, err := c.Store(ctx, m, "c")
	require.NoError(t, err)
	assert.Equal(t, "cache_3", id3)
}

func TestStoreRejectsInvalidMask(t *testing.T) {
	c := New[string]()
	_, err := c.Store(context.Background(), mask.Mask{Data: make([]uint8, 5), Width: 2, Height: 2}, "x")
	assert.ErrorIs(t, err, mask.ErrDimensionMismatch)
	assert.Zero(t, c.Len())
}

func TestStoreOwnsMask(t *testing.T) {
	ctx := context.Background()
	c := New[string]()
	m := createTestMask(t, 20, 20, 2, 2, 12, 12)

	id, err := c.Store(ctx, m, "a")
	require.NoError(t, err)
	clear(m.Data)

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, 100, got.Mask.ForegroundCount())
}

func TestFindSelfIsPerfectMatch(t *testing.T) {
	ctx := context.Background()
	c := New[segmentResult]()
	m := createTestMask(t, 64, 48, 8, 8, 40, 30)
	want := segmentResult{Label: "mug", Paths: []string{"M8 8 L8 30 40 30 40 8"}}

	id, err := c.Store(ctx, m, want)
	require.NoError(t, err)

	matches, err := c.FindSimilar(ctx, m, DefaultSimilarityThreshold)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, id, matches[0].ID)
	assert.Equal(t, 1.0, matches[0].IoU)
	assert.Equal(t, want, matches[0].Result)

	best, ok, err := c.FindBestMatch(ctx, m, DefaultSimilarityThreshold)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, best.ID)
	assert.Equal(t, 1.0, best.IoU)
}

func TestFindBestMatchNearDuplicate(t *testing.T) {
	ctx := context.Background()
	c := New[string]()
	m1 := createTestMask(t, 100, 100, 20, 20, 80, 80) // 3600 px
	m2 := perturb(t, c, m1, 200)

	iou, err := mask.IoU(m1, m2)
	require.NoError(t, err)
	require.GreaterOrEqual(t, iou, 0.9)

	id, err := c.Store(ctx, m1, "first")
	require.NoError(t, err)

	best, ok, err := c.FindBestMatch(ctx, m2, 0.9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, best.ID)
	assert.Equal(t, "first", best.Result)
	assert.InDelta(t, 3400.0/3600.0, best.IoU, 1e-12)
}

func TestFindSimilarSortedByIoU(t *testing.T) {
	ctx := context.Background()
	c := New[string]()
	m := createTestMask(t, 100, 100, 20, 20, 80, 80)

	far, err := c.Store(ctx, perturb(t, c, m, 600), "far")
	require.NoError(t, err)
	exact, err := c.Store(ctx, m, "exact")
	require.NoError(t, err)
	near, err := c.Store(ctx, perturb(t, c, m, 100), "near")
	require.NoError(t, err)

	matches, err := c.FindSimilar(ctx, m, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{exact, near, far}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].IoU, matches[i].IoU)
	}

	// a stricter threshold drops the far one
	matches, err = c.FindSimilar(ctx, m, 0.95)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFindBestMatchMiss(t *testing.T) {
	ctx := context.Background()
	c := New[string]()
	_, err := c.Store(ctx, createTestMask(t, 40, 40, 0, 0, 10, 10), "a")
	require.NoError(t, err)

	_, ok, err := c.FindBestMatch(ctx, createTestMask(t, 40, 40, 25, 25, 40, 40), DefaultSimilarityThreshold)
	require.NoError(t, err)
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(1), stats.Stores)
}

func TestFindOnEmptyCache(t *testing.T) {
	c := New[string]()
	m := createTestMask(t, 10, 10, 0, 0, 5, 5)

	matches, err := c.FindSimilar(context.Background(), m, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	c := New[string]()
	// all background masks share every bucket regardless of size
	_, err := c.Store(ctx, createTestMask(t, 10, 10, 0, 0, 0, 0), "a")
	require.NoError(t, err)

	_, err = c.FindSimilar(ctx, createTestMask(t, 8, 8, 0, 0, 0, 0), 0.9)
	assert.ErrorIs(t, err, mask.ErrDimensionMismatch)

	_, _, err = c.FindBestMatch(ctx, createTestMask(t, 8, 8, 0, 0, 0, 0), 0.9)
	assert.ErrorIs(t, err, mask.ErrDimensionMismatch)
}

func TestUnboundedByDefault(t *testing.T) {
	ctx := context.Background()
	c := New[int]()
	m := createTestMask(t, 16, 16, 0, 0, 8, 8)

	for i := 0; i < 50; i++ {
		_, err := c.Store(ctx, m, i)
		require.NoError(t, err)
	}
	assert.Equal(t, 50, c.Len())
	assert.Zero(t, c.Stats().Evictions)
}

func TestEvictionRemovesFromBuckets(t *testing.T) {
	ctx := context.Background()
	c := New[int](WithMaxRecords(2))
	m := createTestMask(t, 16, 16, 0, 0, 8, 8)

	for i := 1; i <= 3; i++ {
		_, err := c.Store(ctx, m, i)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("cache_1")
	assert.False(t, ok)

	matches, err := c.FindSimilar(ctx, m, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, match := range matches {
		assert.NotEqual(t, "cache_1", match.ID)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestEvictionIsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := New[string](WithMaxRecords(2))
	a := createTestMask(t, 30, 30, 0, 0, 15, 15)
	b := createTestMask(t, 30, 30, 15, 15, 30, 30)

	idA, err := c.Store(ctx, a, "a")
	require.NoError(t, err)
	idB, err := c.Store(ctx, b, "b")
	require.NoError(t, err)

	// a hit on a makes b the oldest
	_, ok, err := c.FindBestMatch(ctx, a, 0.9)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.Store(ctx, createTestMask(t, 30, 30, 5, 5, 25, 25), "c")
	require.NoError(t, err)

	_, ok = c.Get(idA)
	assert.True(t, ok)
	_, ok = c.Get(idB)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	c := New[string](WithNumHashes(4))
	m := createTestMask(t, 20, 20, 0, 0, 10, 10)

	_, err := c.Store(ctx, m, "a")
	require.NoError(t, err)
	_, _, err = c.FindBestMatch(ctx, m, 0.9)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Records)
	assert.LessOrEqual(t, stats.Buckets, 4+3)
	assert.Positive(t, stats.Buckets)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := New[int](WithMaxRecords(64))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				m := createTestMask(t, 32, 32, w, i%16, w+10, i%16+10)
				if _, err := c.Store(ctx, m, w*100+i); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := c.FindBestMatch(ctx, m, 0.9); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 64, c.Len())
	assert.Equal(t, int64(160), c.Stats().Stores)
}

func BenchmarkFindBestMatch(b *testing.B) {
	ctx := context.Background()
	c := New[string]()
	for i := 0; i < 200; i++ {
		m := createTestMask(b, 256, 256, i%100, i%80, i%100+120, i%80+150)
		if _, err := c.Store(ctx, m, fmt.Sprint(i)); err != nil {
			b.Fatal(err)
		}
	}
	query := createTestMask(b, 256, 256, 50, 40, 170, 190)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.FindBestMatch(ctx, query, DefaultSimilarityThreshold)
	}
}
