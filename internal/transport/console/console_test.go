package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

func forced() Palette {
	p := DefaultPalette()
	for _, c := range []*color.Color{p.Subject, p.Positive, p.Negative, p.Neutral} {
		c.EnableColor()
	}
	return p
}

func TestColorify(t *testing.T) {
	p := forced()
	line := "Name: ABB, Last Price: 12.5, Percent Change 1 Day: -1.2, loose"
	got := p.Colorify(line)

	assert.Contains(t, got, p.Subject.Sprint("Name"))
	assert.Contains(t, got, p.Neutral.Sprint(" ABB"))
	assert.Contains(t, got, p.Positive.Sprint(" 12.5"))
	assert.Contains(t, got, p.Negative.Sprint(" -1.2"))
	assert.Contains(t, got, p.Neutral.Sprint(" loose"))
	assert.NotEqual(t, line, got)
}

func TestNoColorIsIdentity(t *testing.T) {
	line := "Name: ABB, Last Price: 12.5, plain"
	assert.Equal(t, line, NoColor().Colorify(line))
}

func TestAdapterRoundTrip(t *testing.T) {
	in := strings.NewReader("quote get short avanza abb\n\n  help  \n")
	var out bytes.Buffer
	a := New(in, &out, logx.Nop(), WithPalette(NoColor()))

	msgs := make(chan transport.Message, 4)
	require.NoError(t, a.Start(context.Background(), msgs))
	close(msgs)

	var texts []string
	for m := range msgs {
		assert.Equal(t, a.Target(), m.Target)
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"quote get short avanza abb", "help"}, texts)

	require.NoError(t, a.Send(context.Background(), a.Target(), "Scheduler: enabled"))
	assert.Equal(t, "Scheduler: enabled\n", out.String())
}
