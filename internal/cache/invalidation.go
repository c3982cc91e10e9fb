// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package cache

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/nightowl-live/nightowl/internal/logging"
)

// InvalidationTopic carries catalog-change notifications. The pipeline
// publishes after every successful write batch; cache holders subscribe
// and drop their entries.
const InvalidationTopic = "catalog.invalidated"

// Bus is the in-process pub/sub used for cache invalidation. It wraps a
// Watermill GoChannel so the transport could later move out of process
// without touching publishers or subscribers.
type Bus struct {
	channel *gochannel.GoChannel
}

// NewBus creates the in-process bus.
func NewBus() *Bus {
	return &Bus{
		channel: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 16,
		}, watermill.NopLogger{}),
	}
}

// PublishInvalidation announces a catalog change. The payload is the run
// id that caused it, for log correlation only.
func (b *Bus) PublishInvalidation(runID string) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(runID))
	if err := b.channel.Publish(InvalidationTopic, msg); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe returns the invalidation message stream.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	ch, err := b.channel.Subscribe(ctx, InvalidationTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe invalidation: %w", err)
	}
	return ch, nil
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.channel.Close()
}

// Invalidator clears a cache whenever an invalidation arrives. It runs as
// a supervised service.
type Invalidator struct {
	bus   *Bus
	cache *Cache
}

// NewInvalidator wires a cache to the bus.
func NewInvalidator(bus *Bus, cache *Cache) *Invalidator {
	return &Invalidator{bus: bus, cache: cache}
}

// Serve consumes invalidations until the context is cancelled.
func (inv *Invalidator) Serve(ctx context.Context) error {
	messages, err := inv.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			inv.cache.Clear()
			logging.Debug().Str("run_id", string(msg.Payload)).Msg("Response cache invalidated")
			msg.Ack()
		}
	}
}

func (inv *Invalidator) String() string {
	return "cache-invalidator"
}
