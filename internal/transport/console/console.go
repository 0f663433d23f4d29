// Package console is a line-oriented transport over a reader and a writer,
// used by the CLI and for local runs.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

// DefaultID is the session id of the console conversation.
const DefaultID = "local"

// Palette colors the parts of a result line.
type Palette struct {
	Subject  *color.Color
	Positive *color.Color
	Negative *color.Color
	Neutral  *color.Color
}

func DefaultPalette() Palette {
	return Palette{
		Subject:  color.New(color.FgMagenta),
		Positive: color.New(color.FgGreen),
		Negative: color.New(color.FgRed),
		Neutral:  color.New(color.FgHiBlack),
	}
}

// NoColor returns a palette that leaves text untouched.
func NoColor() Palette {
	p := DefaultPalette()
	for _, c := range []*color.Color{p.Subject, p.Positive, p.Negative, p.Neutral} {
		c.DisableColor()
	}
	return p
}

// Colorify colors "Subject: value, Subject: value" lines. Numeric values are
// green when >= 0 and red when negative; anything else is grey.
func (p Palette) Colorify(msg string) string {
	sections := strings.Split(msg, ",")
	out := make([]string, 0, len(sections))
	for _, sec := range sections {
		subject, value, ok := strings.Cut(sec, ":")
		if !ok {
			out = append(out, p.Neutral.Sprint(sec))
			continue
		}
		vc := p.Neutral
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			vc = p.Positive
			if f < 0 {
				vc = p.Negative
			}
		}
		out = append(out, p.Subject.Sprint(subject)+":"+vc.Sprint(value))
	}
	return strings.Join(out, ",")
}

// Adapter reads commands line by line from in and prints output to out.
type Adapter struct {
	in      io.Reader
	out     io.Writer
	id      string
	palette Palette
	log     logx.Logger

	mu sync.Mutex
}

var _ transport.Adapter = (*Adapter)(nil)

type Option func(*Adapter)

func WithPalette(p Palette) Option { return func(a *Adapter) { a.palette = p } }
func WithID(id string) Option      { return func(a *Adapter) { a.id = id } }

func New(in io.Reader, out io.Writer, log logx.Logger, opts ...Option) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{in: in, out: out, id: DefaultID, palette: DefaultPalette(), log: log.With(logx.String("comp", "console"))}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Channel() string { return transport.ChannelConsole }

// Target is the console conversation.
func (a *Adapter) Target() transport.Target {
	return transport.Target{Channel: transport.ChannelConsole, ID: a.id}
}

// Start forwards non-empty input lines until EOF or ctx is done. It returns
// once input is exhausted.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	sc := bufio.NewScanner(a.in)
	n := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n++
		select {
		case out <- transport.Message{ID: n, Target: a.Target(), FromUsername: "console", Text: line}:
		case <-ctx.Done():
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("console read: %w", err)
	}
	a.log.Debug("console input closed", logx.Int("lines", n))
	return nil
}

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) Send(_ context.Context, _ transport.Target, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintln(a.out, a.palette.Colorify(text))
	return err
}
