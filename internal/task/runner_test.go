package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/eventbus"
	logx "stockbot/pkg/logx"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStartRunsInBackground(t *testing.T) {
	r := NewRunner(logx.Nop(), nil)
	release := make(chan struct{})
	var ran atomic.Bool

	info, err := r.Start(context.Background(), "scrape-sek_large", func(context.Context) error {
		<-release
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.True(t, r.IsRunning("scrape-sek_large"))
	assert.False(t, ran.Load())

	close(release)
	require.NoError(t, r.Wait(waitCtx(t)))
	assert.True(t, ran.Load())
	assert.False(t, r.IsRunning("scrape-sek_large"))

	recent := r.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, StatusSucceeded, recent[0].Status)
}

func TestDuplicateKeyRejected(t *testing.T) {
	r := NewRunner(logx.Nop(), nil)
	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}

	first, err := r.Start(context.Background(), "k", fn)
	require.NoError(t, err)
	cur, err := r.Start(context.Background(), "k", fn)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, first.ID, cur.ID)

	close(release)
	require.NoError(t, r.Wait(waitCtx(t)))
	assert.Equal(t, int32(1), calls.Load())

	_, err = r.Start(context.Background(), "k", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, r.Wait(waitCtx(t)))
}

func TestConcurrentStartSameKeyStartsOnce(t *testing.T) {
	r := NewRunner(logx.Nop(), nil)
	release := make(chan struct{})
	var started atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Start(context.Background(), "same", func(context.Context) error {
				<-release
				return nil
			}); err == nil {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	close(release)
	require.NoError(t, r.Wait(waitCtx(t)))
	assert.Equal(t, int32(1), started.Load())
}

func TestPanicAndErrorAreRecorded(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	r := NewRunner(logx.Nop(), bus)
	_, err := r.Start(context.Background(), "boom", func(context.Context) error { panic("kaboom") })
	require.NoError(t, err)
	_, err = r.Start(context.Background(), "fail", func(context.Context) error { return errors.New("nope") })
	require.NoError(t, err)
	require.NoError(t, r.Wait(waitCtx(t)))

	byKey := map[string]Info{}
	for _, i := range r.Recent() {
		byKey[i.Key] = i
	}
	assert.Equal(t, StatusFailed, byKey["boom"].Status)
	assert.Contains(t, byKey["boom"].Err, "kaboom")
	assert.Equal(t, "nope", byKey["fail"].Err)

	finished := 0
	deadline := time.After(2 * time.Second)
	for finished < 2 {
		select {
		case ev := <-events:
			if ev.Type == EventFinished {
				finished++
				assert.Equal(t, string(StatusFailed), ev.Attrs["status"])
			}
		case <-deadline:
			t.Fatalf("got %d finished events", finished)
		}
	}
}

func TestTaskIgnoresCallerCancellation(t *testing.T) {
	r := NewRunner(logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var ctxErr atomic.Value

	_, err := r.Start(ctx, "detached", func(c context.Context) error {
		<-release
		ctxErr.Store(c.Err() == nil)
		return nil
	})
	require.NoError(t, err)
	cancel()
	close(release)
	require.NoError(t, r.Wait(waitCtx(t)))
	assert.Equal(t, true, ctxErr.Load())
}

func TestEmptyKey(t *testing.T) {
	r := NewRunner(logx.Nop(), nil)
	_, err := r.Start(context.Background(), "  ", nil)
	require.ErrorIs(t, err, ErrEmptyKey)
}
