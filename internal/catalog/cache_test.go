package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls   atomic.Int32
	records []Record
	err     error
	delay   time.Duration
}

func (s *countingSource) FetchRecords(ctx context.Context) ([]Record, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.records, s.err
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheVersionAndBump(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "catalog", "records")
	require.NoError(t, err)
	assert.Equal(t, "catalog:records:1", key)

	bumped, err := cache.Bump(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bumped)
	got, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestCachedFetcherServesFromCacheUntilBump(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	source := &countingSource{records: []Record{rec("Bennu", day(2060, time.September, 23), 0.005, 6.1)}}
	fetcher := NewCachedFetcher(source, cache, nil)

	first, err := fetcher.FetchRecords(ctx)
	require.NoError(t, err)
	second, err := fetcher.FetchRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.calls.Load())

	_, err = cache.Bump(ctx)
	require.NoError(t, err)
	_, err = fetcher.FetchRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestCachedFetcherCollapsesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache(t)
	source := &countingSource{records: []Record{rec("Ryugu", day(2076, time.December, 2), 0.01, 4)}, delay: 50 * time.Millisecond}
	fetcher := NewCachedFetcher(source, cache, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fetcher.FetchRecords(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCachedFetcherFallsThroughWhenRedisIsDown(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()
	source := &countingSource{records: []Record{rec("Apophis", day(2029, time.April, 13), 0.00025, 7.4)}}
	fetcher := NewCachedFetcher(source, cache, nil)

	records, err := fetcher.FetchRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCachedFetcherPropagatesSourceErrors(t *testing.T) {
	cache, _ := newTestCache(t)
	boom := errors.New("pg down")
	fetcher := NewCachedFetcher(&countingSource{err: boom}, cache, nil)

	_, err := fetcher.FetchRecords(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestListenForInvalidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cache, _ := newTestCache(t)

	bumps := make(chan int64, 1)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(v int64) { bumps <- v }))

	_, err := cache.Bump(ctx)
	require.NoError(t, err)

	select {
	case v := <-bumps:
		assert.Equal(t, int64(1), v)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation received")
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var cache *Cache
	ctx := context.Background()
	key, err := cache.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", key)
	ver, err := cache.Bump(ctx)
	require.NoError(t, err)
	assert.Zero(t, ver)
}

func TestRepositoryWithoutPool(t *testing.T) {
	repo := NewRepository(nil, nil)
	_, err := repo.FetchRecords(context.Background())
	assert.True(t, IsTransport(err))

	saved, err := repo.SaveRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, saved)

	_, err = repo.SaveRecords(context.Background(), []Record{rec("x", day(2024, 1, 1), 1, 1)})
	assert.True(t, IsTransport(err))
}
