package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers get buffered channels; slow subscribers drop events.
//
// Attrs travel as message metadata, so keep them small.
type Event struct {
	Type  string
	Time  time.Time
	Attrs map[string]string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	Close() error
}

const (
	topic        = "stockbot.events"
	metaType     = "type"
	metaTime     = "time"
	attrPrefix   = "a."
	outputBuffer = 64
)

// New returns an in-memory fanout bus backed by watermill's gochannel pubsub.
func New() Bus {
	return &wmBus{
		ps: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: outputBuffer, Persistent: false},
			watermill.NopLogger{},
		),
	}
}

type wmBus struct {
	ps *gochannel.GoChannel

	mu     sync.Mutex
	closed bool
}

func (b *wmBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set(metaType, e.Type)
	msg.Metadata.Set(metaTime, e.Time.Format(time.RFC3339Nano))
	for k, v := range e.Attrs {
		msg.Metadata.Set(attrPrefix+k, v)
	}
	// gochannel delivers asynchronously unless BlockPublishUntilSubscriberAck is set.
	_ = b.ps.Publish(topic, msg)
}

func (b *wmBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	out := make(chan Event, buffer)

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := b.ps.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		close(out)
		return out, func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for msg := range msgs {
			ev := decode(msg)
			msg.Ack()
			select {
			case out <- ev:
			default:
			}
		}
	}()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return out, unsub
}

func (b *wmBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.ps.Close()
}

func decode(msg *message.Message) Event {
	ev := Event{Type: msg.Metadata.Get(metaType)}
	if ts, err := time.Parse(time.RFC3339Nano, msg.Metadata.Get(metaTime)); err == nil {
		ev.Time = ts
	}
	for k, v := range msg.Metadata {
		if len(k) > len(attrPrefix) && k[:len(attrPrefix)] == attrPrefix {
			if ev.Attrs == nil {
				ev.Attrs = map[string]string{}
			}
			ev.Attrs[k[len(attrPrefix):]] = v
		}
	}
	return ev
}
