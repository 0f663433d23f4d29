package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "stockbot/pkg/logx"
)

// Tickable is what the Ticker drives; *Group implements it.
type Tickable interface {
	Tick(ctx context.Context, now time.Time) int
}

// Ticker is the external tick source: a cron job calling Tick at a fixed
// cadence. Overlapping ticks are skipped.
type Ticker struct {
	c      *cron.Cron
	target Tickable
	log    logx.Logger
	spec   string

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTicker(spec string, loc *time.Location, target Tickable, log logx.Logger) (*Ticker, error) {
	if target == nil {
		return nil, fmt.Errorf("ticker target required")
	}
	sch, err := ParseTick(spec)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "ticker"))

	cl := cronLogger{log: log}
	t := &Ticker{
		c: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		target: target,
		log:    log,
		spec:   spec,
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.c.Schedule(sch, cron.FuncJob(t.tick))
	return t, nil
}

func (t *Ticker) tick() {
	now := time.Now()
	if n := t.target.Tick(t.ctx, now); n > 0 {
		t.log.Info("scheduled commands fired", logx.Int("sessions", n))
	}
}

func (t *Ticker) Start() {
	t.log.Info("ticker started", logx.String("spec", t.spec))
	t.c.Start()
}

// Stop stops scheduling and waits for a running tick, bounded by ctx.
func (t *Ticker) Stop(ctx context.Context) error {
	done := t.c.Stop()
	defer t.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the next tick is due (zero before Start).
func (t *Ticker) Next() time.Time {
	entries := t.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) { l.log.Trace("cron: "+msg, kvFields(kv)...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
