package tasks

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conneroisu/sitekit/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) task(name string, err error) Task {
	return New(name, func(ctx context.Context) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return err
	})
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestSeriesRunsInOrder(t *testing.T) {
	r := &recorder{}
	s := Series("build", r.task("a", nil), r.task("b", nil), r.task("c", nil))

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, r.Calls())
	assert.Equal(t, "series", Describe(s))
	assert.Len(t, Children(s), 3)
}

func TestSeriesStopsAtFirstFailure(t *testing.T) {
	r := &recorder{}
	boom := errors.New("boom")
	s := Series("build", r.task("a", nil), r.task("b", boom), r.task("c", nil))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, r.Calls())
}

func TestParallelRunsConcurrently(t *testing.T) {
	var running, peak int32
	barrier := make(chan struct{})

	mk := func(name string) Task {
		return New(name, func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-barrier
			atomic.AddInt32(&running, -1)
			return nil
		})
	}

	p := Parallel("assets", mk("a"), mk("b"), mk("c"))
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 3 }, time.Second, 5*time.Millisecond)
	close(barrier)
	require.NoError(t, <-done)
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
	assert.Equal(t, "parallel", Describe(p))
}

func TestParallelFailureCancelsSiblings(t *testing.T) {
	boom := errors.New("boom")
	var cancelled atomic.Bool

	slow := New("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	failing := New("failing", func(ctx context.Context) error { return boom })

	err := Parallel("assets", slow, failing).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, cancelled.Load())
}

func TestRegistry(t *testing.T) {
	r := &recorder{}
	reg := NewRegistry(nil)

	a := reg.MustRegister(r.task("a", nil))
	b := reg.MustRegister(r.task("b", nil))
	reg.MustRegister(Series("both", a, b))
	require.NoError(t, reg.SetDefault("both"))
	require.NoError(t, reg.Alias("ab", "both"))

	_, err := reg.Register(r.task("a", nil))
	assert.Error(t, err)

	assert.Equal(t, []string{"a", "ab", "b", "both"}, reg.Names())
	assert.Equal(t, "both", reg.Default())

	require.NoError(t, reg.Run(context.Background()))
	assert.Equal(t, []string{"a", "b"}, r.Calls())

	require.NoError(t, reg.Run(context.Background(), "b", "a"))
	assert.Equal(t, []string{"a", "b", "b", "a"}, r.Calls())

	require.NoError(t, reg.Run(context.Background(), "ab"))
	assert.Len(t, r.Calls(), 6)

	err = reg.Run(context.Background(), "nope")
	var unknown *UnknownTaskError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Name)

	assert.Error(t, reg.SetDefault("nope"))
	assert.Error(t, reg.Alias("x", "nope"))
}

func TestObserverLogsAndRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelInfo, Format: "text", Output: &buf})
	metrics := NewMetrics()
	reg := NewRegistry(NewObserver(logger, metrics))

	boom := errors.New("boom")
	reg.MustRegister(New("ok", func(ctx context.Context) error { return nil }))
	reg.MustRegister(New("bad", func(ctx context.Context) error { return boom }))

	require.NoError(t, reg.Run(context.Background(), "ok"))
	require.NoError(t, reg.Run(context.Background(), "ok"))
	assert.ErrorIs(t, reg.Run(context.Background(), "bad"), boom)

	out := buf.String()
	assert.Contains(t, out, "Starting 'ok'...")
	assert.Contains(t, out, "Finished 'ok' after")
	assert.Contains(t, out, "'bad' errored after")

	ok, found := metrics.Get("ok")
	require.True(t, found)
	assert.Equal(t, int64(2), ok.Runs)
	assert.Equal(t, int64(0), ok.Failures)
	assert.Equal(t, 100.0, ok.SuccessRate())

	bad, found := metrics.Get("bad")
	require.True(t, found)
	assert.Equal(t, int64(1), bad.Failures)
	assert.Equal(t, "boom", bad.LastError)

	snap := metrics.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "bad", snap[0].Name)

	metrics.Reset()
	assert.Empty(t, metrics.Snapshot())
}

func TestObserverWrapIsIdempotent(t *testing.T) {
	o := NewObserver(nil, NewMetrics())
	task := New("x", func(ctx context.Context) error { return nil })
	once := o.Wrap(task)
	assert.Same(t, once, o.Wrap(once))
	assert.Equal(t, "task", Describe(once))
}

func TestSerialFoldsOverlappingTriggers(t *testing.T) {
	var runs int32
	release := make(chan struct{})
	started := make(chan struct{}, 10)

	task := New("styles", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		<-release
		return nil
	})
	s := NewSerial(task, nil)
	ctx := context.Background()

	s.Trigger(ctx)
	<-started
	// Three triggers while the first run is in flight collapse into one.
	s.Trigger(ctx)
	s.Trigger(ctx)
	s.Trigger(ctx)

	release <- struct{}{}
	<-started
	release <- struct{}{}
	s.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
	assert.Equal(t, "styles", s.Name())
}

func TestSerialReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	var got atomic.Value
	s := NewSerial(New("x", func(ctx context.Context) error { return boom }), func(err error) {
		got.Store(err)
	})

	s.Trigger(context.Background())
	s.Wait()
	assert.Equal(t, boom, got.Load())
}
