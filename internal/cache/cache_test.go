package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/letsssgooo/quizResults/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counter считает вызовы и отдаёт текущее значение value.
type counter struct {
	calls atomic.Int64
	value atomic.Int64
	err   error
}

func (c *counter) compute(_ context.Context) (int64, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}

	return c.value.Load(), nil
}

type recorder struct {
	mu      sync.Mutex
	results []string
}

func (r *recorder) ObserveCache(_, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, result)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingKV) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func TestView_LazyRecomputesOnMissAndAfterTTL(t *testing.T) {
	mock := clock.NewMock(testEpoch)
	kv := storage.NewMemoryKV(&storage.MemoryKVOpts{Clock: mock})
	src := &counter{}
	src.value.Store(1)
	rec := &recorder{}

	view := NewView("leaderboard",
		Policy{TTL: 15 * time.Second, Mode: ModeLazy, Miss: MissRecompute},
		kv, src.compute, WithLogger(discardLogger()), WithObserver(rec),
	)
	ctx := context.Background()

	value, err := view.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
	assert.Equal(t, int64(1), src.calls.Load())

	// Внутри TTL отдаётся закэшированное значение, даже если источник изменился.
	src.value.Store(2)
	mock.Add(14 * time.Second)

	value, err = view.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
	assert.Equal(t, int64(1), src.calls.Load())

	mock.Add(time.Second)

	value, err = view.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)
	assert.Equal(t, int64(2), src.calls.Load())

	assert.Equal(t, []string{ResultMiss, ResultHit, ResultMiss}, rec.results)
}

func TestView_MissSurvivesCallerCancel(t *testing.T) {
	kv := storage.NewMemoryKV(nil)

	view := NewView("leaderboard",
		Policy{TTL: time.Minute, Mode: ModeLazy, Miss: MissRecompute},
		kv,
		func(ctx context.Context) (int64, error) {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			return 7, nil
		},
		WithLogger(discardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	value, err := view.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)

	_, ok, err := kv.Get(context.Background(), "leaderboard")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestView_UnavailableNeverComputesInline(t *testing.T) {
	kv := storage.NewMemoryKV(nil)
	src := &counter{}

	view := NewView("topusers",
		Policy{TTL: time.Minute, Mode: ModePush, Miss: MissUnavailable},
		kv, src.compute, WithLogger(discardLogger()),
	)
	ctx := context.Background()

	_, err := view.Get(ctx)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int64(0), src.calls.Load())

	src.value.Store(42)
	require.NoError(t, view.Refresh(ctx))

	value, err := view.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestView_ComputeErrorIsNotCached(t *testing.T) {
	kv := storage.NewMemoryKV(nil)
	src := &counter{err: errors.New("db is down")}

	view := NewView("leaderboard",
		Policy{TTL: time.Minute, Mode: ModeLazy, Miss: MissRecompute},
		kv, src.compute, WithLogger(discardLogger()),
	)

	_, err := view.Get(context.Background())
	require.Error(t, err)

	_, ok, err := kv.Get(context.Background(), "leaderboard")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestView_KVErrorIsReported(t *testing.T) {
	src := &counter{}

	view := NewView("leaderboard",
		Policy{TTL: time.Minute, Mode: ModeLazy, Miss: MissRecompute},
		failingKV{}, src.compute, WithLogger(discardLogger()),
	)

	_, err := view.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int64(0), src.calls.Load())
}

func TestView_UndecodableEntryIsAMiss(t *testing.T) {
	kv := storage.NewMemoryKV(nil)
	src := &counter{}
	src.value.Store(7)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "leaderboard", []byte("{broken"), time.Minute))

	view := NewView("leaderboard",
		Policy{TTL: time.Minute, Mode: ModeLazy, Miss: MissRecompute},
		kv, src.compute, WithLogger(discardLogger()),
	)

	value, err := view.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)
}

func TestRefresher_PublishesPeriodically(t *testing.T) {
	mock := clock.NewMock(testEpoch)
	kv := storage.NewMemoryKV(&storage.MemoryKVOpts{Clock: mock})

	top := &counter{}
	top.value.Store(1)
	topView := NewView("topusers",
		Policy{TTL: 60 * time.Second, Mode: ModePush, Miss: MissUnavailable},
		kv, top.compute, WithLogger(discardLogger()),
	)

	lazy := &counter{}
	lazyView := NewView("leaderboard",
		Policy{TTL: 15 * time.Second, Mode: ModeLazy, Miss: MissRecompute},
		kv, lazy.compute, WithLogger(discardLogger()),
	)

	refresher := NewRefresher(15*time.Second, mock, discardLogger(), topView, lazyView)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- refresher.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		value, err := topView.Get(ctx)
		return err == nil && value == 1
	}, time.Second, 5*time.Millisecond)

	top.value.Store(2)
	mock.Add(15 * time.Second)

	require.Eventually(t, func() bool {
		value, err := topView.Get(ctx)
		return err == nil && value == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(0), lazy.calls.Load(), "lazy views are not refreshed in background")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestRefresher_SurvivesFailedCycle(t *testing.T) {
	mock := clock.NewMock(testEpoch)
	kv := storage.NewMemoryKV(&storage.MemoryKVOpts{Clock: mock})

	src := &flaky{}
	view := NewView("topusers",
		Policy{TTL: 60 * time.Second, Mode: ModePush, Miss: MissUnavailable},
		kv, src.compute, WithLogger(discardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = NewRefresher(15*time.Second, mock, discardLogger(), view).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return src.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	_, err := view.Get(ctx)
	assert.ErrorIs(t, err, ErrNotReady)

	mock.Add(15 * time.Second)

	require.Eventually(t, func() bool {
		value, err := view.Get(ctx)
		return err == nil && value == 10
	}, time.Second, 5*time.Millisecond)
}

// flaky падает на первом вызове и отвечает 10 на следующих.
type flaky struct {
	calls atomic.Int64
}

func (f *flaky) compute(_ context.Context) (int64, error) {
	if f.calls.Add(1) == 1 {
		return 0, errors.New("temporary failure")
	}

	return 10, nil
}
