package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFetch(calls *atomic.Int64, value any) FetchFunc {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestDoCachesWithinStaleWindow(t *testing.T) {
	store := NewStore()
	key := Key{"ascendraa", "check", "feat-1"}
	var calls atomic.Int64

	first, err := store.Do(context.Background(), key, time.Minute, countingFetch(&calls, "v1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", first)

	second, err := store.Do(context.Background(), key, time.Minute, countingFetch(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, "v1", second, "fresh entry must be served from cache")
	assert.Equal(t, int64(1), calls.Load(), "no second network call within the freshness window")
}

func TestDoRefetchesWhenStale(t *testing.T) {
	store := NewStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	key := Key{"ascendraa", "check", "feat-1"}
	var calls atomic.Int64

	_, err := store.Do(context.Background(), key, 5*time.Second, countingFetch(&calls, "v1"))
	require.NoError(t, err)

	now = now.Add(6 * time.Second)
	value, err := store.Do(context.Background(), key, 5*time.Second, countingFetch(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", value)
	assert.Equal(t, int64(2), calls.Load())
}

func TestInvalidateExactKeyOnly(t *testing.T) {
	store := NewStore()
	var calls atomic.Int64
	ctx := context.Background()

	keyA := Key{"ascendraa", "check", "feat-123"}
	keyB := Key{"ascendraa", "check", "other-feature"}

	_, err := store.Do(ctx, keyA, time.Minute, countingFetch(&calls, "a"))
	require.NoError(t, err)
	_, err = store.Do(ctx, keyB, time.Minute, countingFetch(&calls, "b"))
	require.NoError(t, err)

	store.Invalidate(keyA)

	_, err = store.Do(ctx, keyA, time.Minute, countingFetch(&calls, "a2"))
	require.NoError(t, err)
	value, err := store.Do(ctx, keyB, time.Minute, countingFetch(&calls, "b2"))
	require.NoError(t, err)

	assert.Equal(t, "b", value, "untouched key must keep its cached value")
	assert.Equal(t, int64(3), calls.Load())
}

func TestInvalidatePrefixRemovesWholeNamespace(t *testing.T) {
	store := NewStore()
	var calls atomic.Int64
	ctx := context.Background()

	keys := []Key{
		{"ascendraa", "check", "feat-123"},
		{"ascendraa", "check", "other-feature"},
		{"ascendraa", "usage", "feat-123"},
		{"ascendraa", "customer", "cus_1"},
	}
	for _, key := range keys {
		_, err := store.Do(ctx, key, time.Minute, countingFetch(&calls, key.String()))
		require.NoError(t, err)
	}
	require.Equal(t, 4, store.Len())

	store.InvalidatePrefix(Key{"ascendraa", "check"})
	assert.Equal(t, 2, store.Len(), "both check entries gone, usage and customer intact")

	store.InvalidatePrefix(Key{"ascendraa", "customer"})
	assert.Equal(t, 1, store.Len())
}

func TestInvalidatePrefixIsSegmentAligned(t *testing.T) {
	store := NewStore()
	var calls atomic.Int64
	ctx := context.Background()

	_, err := store.Do(ctx, Key{"ascendraa", "checkout", "x"}, time.Minute, countingFetch(&calls, "v"))
	require.NoError(t, err)

	// "check" must not match the "checkout" namespace.
	store.InvalidatePrefix(Key{"ascendraa", "check"})
	assert.Equal(t, 1, store.Len())
}

func TestDoDeduplicatesConcurrentFetches(t *testing.T) {
	store := NewStore()
	key := Key{"ascendraa", "check", "feat-1"}

	var calls atomic.Int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Do(context.Background(), key, time.Minute, fetch)
		}(i)
	}

	// Give the goroutines time to pile onto the singleflight group.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent reads for one key must share one fetch")
	for i, value := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", value)
	}
}

func TestDoRetriesReads(t *testing.T) {
	store := NewStore(WithReadRetries(2))
	key := Key{"ascendraa", "check", "feat-1"}

	var calls atomic.Int64
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	}

	value, err := store.Do(context.Background(), key, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, int64(3), calls.Load())
}

func TestDoFailedFetchCachesNothing(t *testing.T) {
	store := NewStore(WithReadRetries(0))
	key := Key{"ascendraa", "check", "feat-1"}

	wantErr := errors.New("boom")
	_, err := store.Do(context.Background(), key, time.Minute, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, store.Len())
}

func TestDoHonorsContextCancellation(t *testing.T) {
	store := NewStore(WithReadRetries(5))
	key := Key{"ascendraa", "check", "feat-1"}

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	_, err := store.Do(ctx, key, time.Minute, func(ctx context.Context) (any, error) {
		calls.Add(1)
		cancel()
		return nil, errors.New("failed")
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "retries must stop once the context is cancelled")
}

type recordingObserver struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func (o *recordingObserver) CacheHit(namespace string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.hits == nil {
		o.hits = make(map[string]int)
	}
	o.hits[namespace]++
}

func (o *recordingObserver) CacheMiss(namespace string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.misses == nil {
		o.misses = make(map[string]int)
	}
	o.misses[namespace]++
}

func TestObserverSeesHitsAndMisses(t *testing.T) {
	observer := &recordingObserver{}
	store := NewStore(WithObserver(observer))
	key := Key{"ascendraa", "check", "feat-1"}
	var calls atomic.Int64

	_, err := store.Do(context.Background(), key, time.Minute, countingFetch(&calls, "v"))
	require.NoError(t, err)
	_, err = store.Do(context.Background(), key, time.Minute, countingFetch(&calls, "v"))
	require.NoError(t, err)

	assert.Equal(t, 1, observer.misses["check"])
	assert.Equal(t, 1, observer.hits["check"])
}
