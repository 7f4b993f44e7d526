package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

const ToolEventsTopic = "tool.events"

var _ core.ToolEventPublisher = (*Bus)(nil)

// Bus fans tool events out over a watermill publisher/subscriber pair.
type Bus struct {
	pub     message.Publisher
	sub     message.Subscriber
	topic   string
	closers []func() error
}

// NewGoChannelBus keeps events in process.
func NewGoChannelBus(logger watermill.LoggerAdapter) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)

	return &Bus{
		pub:     ch,
		sub:     ch,
		topic:   ToolEventsTopic,
		closers: []func() error{ch.Close},
	}
}

func NewBus(pub message.Publisher, sub message.Subscriber) *Bus {
	return &Bus{
		pub:     pub,
		sub:     sub,
		topic:   ToolEventsTopic,
		closers: []func() error{pub.Close, sub.Close},
	}
}

func (b *Bus) PublishToolEvent(ctx context.Context, ev core.ToolEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal tool event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("request_id", ev.RequestID)
	msg.SetContext(ctx)

	if err := b.pub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("publish tool event: %w", err)
	}
	return nil
}

// Subscribe streams decoded events until ctx is done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan core.ToolEvent, error) {
	messages, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.topic, err)
	}

	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var ev core.ToolEvent
				if err := json.Unmarshal(msg.Payload, &ev); err != nil {
					log.FromCtx(ctx).Warn().Err(err).Str("uuid", msg.UUID).Msg("dropping malformed tool event")
					msg.Ack()
					continue
				}
				msg.Ack()

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (b *Bus) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
