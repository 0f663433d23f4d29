// Package task runs keyed background work: at most one task per key is in
// flight at any time.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockbot/internal/eventbus"
	logx "stockbot/pkg/logx"
)

// Func is the body of a task. It runs on a context detached from the
// caller's cancellation.
type Func func(ctx context.Context) error

type Runner struct {
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	running map[string]Info
	history []Info
	maxHist int
	idle    chan struct{} // closed while nothing runs
}

func NewRunner(log logx.Logger, bus eventbus.Bus) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	idle := make(chan struct{})
	close(idle)
	return &Runner{
		log:     log.With(logx.String("comp", "task")),
		bus:     bus,
		running: map[string]Info{},
		maxHist: 50,
		idle:    idle,
	}
}

// Start launches fn in the background under key. It returns ErrAlreadyRunning
// without starting anything if key is in flight.
func (r *Runner) Start(ctx context.Context, key string, fn Func) (Info, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Info{}, ErrEmptyKey
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	if cur, ok := r.running[key]; ok {
		r.mu.Unlock()
		return cur, ErrAlreadyRunning
	}
	info := Info{ID: uuid.NewString(), Key: key, Status: StatusRunning, StartedAt: time.Now()}
	r.running[key] = info
	if len(r.running) == 1 {
		r.idle = make(chan struct{})
	}
	r.mu.Unlock()

	r.publish(eventbus.Event{Type: EventStarted, Time: info.StartedAt, Attrs: map[string]string{
		"id": info.ID, "key": key,
	}})
	r.log.Debug("task started", logx.String("task", key), logx.String("id", info.ID))

	go r.run(context.WithoutCancel(ctx), info, fn)
	return info, nil
}

func (r *Runner) run(ctx context.Context, info Info, fn Func) {
	err := safeCall(ctx, fn)

	info.EndedAt = time.Now()
	info.Status = StatusSucceeded
	if err != nil {
		info.Status = StatusFailed
		info.Err = err.Error()
	}

	r.mu.Lock()
	delete(r.running, info.Key)
	r.history = append(r.history, info)
	if len(r.history) > r.maxHist {
		r.history = r.history[len(r.history)-r.maxHist:]
	}
	if len(r.running) == 0 {
		close(r.idle)
	}
	r.mu.Unlock()

	fields := []logx.Field{logx.String("task", info.Key), logx.Duration("took", info.Duration())}
	if err != nil {
		r.log.Warn("task failed", append(fields, logx.Err(err))...)
	} else {
		r.log.Debug("task done", fields...)
	}
	r.publish(eventbus.Event{Type: EventFinished, Time: info.EndedAt, Attrs: map[string]string{
		"id": info.ID, "key": info.Key, "status": string(info.Status), "err": info.Err,
	}})
}

func safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (r *Runner) publish(e eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// IsRunning reports whether a task with key is in flight.
func (r *Runner) IsRunning(key string) bool {
	r.mu.Lock()
	_, ok := r.running[strings.TrimSpace(key)]
	r.mu.Unlock()
	return ok
}

// Running lists in-flight tasks ordered by start time.
func (r *Runner) Running() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.running))
	for _, i := range r.running {
		out = append(out, i)
	}
	r.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out
}

// Recent returns finished tasks, newest last.
func (r *Runner) Recent() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Info(nil), r.history...)
}

// Wait blocks until no task is running or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
