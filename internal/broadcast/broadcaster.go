// Package broadcast fans accepted state changes out to display clients.
// Events carry a per-entity monotonic sequence number; a subscriber sees
// non-decreasing sequences per entity and deduplicates on (entity, sequence).
// Joining clients take a snapshot of current state instead of replaying
// history.
package broadcast

import (
	"context"
	"sync"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
)

// ChannelAll subscribes to every event regardless of channel. Used by the
// AMQP relay, which re-routes per channel on the broker side.
const ChannelAll = "*"

// SnapshotSource produces the full current state of a channel for a joining
// subscriber.
type SnapshotSource interface {
	Snapshot(ctx context.Context, channel string) (domain.ChannelSnapshot, error)
}

// Broadcaster routes events to channel subscribers. Publish never blocks a
// mutation: a subscriber that cannot keep up has events dropped and counted,
// and recovers by re-subscribing with a snapshot.
type Broadcaster struct {
	mu     sync.RWMutex
	seq    map[string]uint64
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool

	snapshots SnapshotSource
	lg        *logger.Logger
}

// New builds a broadcaster. buffer is the per-subscriber channel depth;
// snapshots may be nil when no snapshot-on-join is needed.
func New(snapshots SnapshotSource, buffer int, lg *logger.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		seq:       make(map[string]uint64),
		subs:      make(map[string]map[*Subscription]struct{}),
		buffer:    buffer,
		snapshots: snapshots,
		lg:        lg,
	}
}

// Publish stamps the event with the next sequence number for its entity and
// delivers it to every subscriber of its channels.
func (b *Broadcaster) Publish(ev domain.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	key := ev.EntityKey()
	b.seq[key]++
	stamped := ev.WithSequence(b.seq[key])

	// Delivery stays under the lock so a concurrent Close cannot close a
	// channel mid-send. Sends never block: the channel is buffered and a
	// full buffer drops the event instead.
	seen := make(map[*Subscription]bool)
	channels := append([]string{ChannelAll}, stamped.Channels()...)
	for _, ch := range channels {
		for sub := range b.subs[ch] {
			if seen[sub] {
				continue
			}
			seen[sub] = true
			select {
			case sub.ch <- stamped:
			default:
				sub.dropped.Add(1)
				if b.lg != nil {
					b.lg.Warn("subscriber_lagging", map[string]any{"channel": sub.channel, "entity": key})
				}
			}
		}
	}
	b.mu.Unlock()
}

// Subscribe joins a channel. The caller owns the subscription and must Close
// it.
func (b *Broadcaster) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		b:       b,
		channel: channel,
		ch:      make(chan domain.Event, b.buffer),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		sub.done = true
		return sub
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub
}

// SubscribeWithSnapshot joins a channel and returns the channel's current
// state, taken before delivery starts so the subscriber misses nothing: any
// change racing the snapshot also arrives as an event, and duplicates are
// resolved by sequence number.
func (b *Broadcaster) SubscribeWithSnapshot(ctx context.Context, channel string) (*Subscription, domain.ChannelSnapshot, error) {
	sub := b.Subscribe(channel)
	if b.snapshots == nil {
		return sub, domain.ChannelSnapshot{Channel: channel}, nil
	}
	snap, err := b.snapshots.Snapshot(ctx, channel)
	if err != nil {
		sub.Close()
		return nil, domain.ChannelSnapshot{}, err
	}
	return sub, snap, nil
}

// Close tears down every subscription. Publish becomes a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			if !sub.done {
				close(sub.ch)
				sub.done = true
			}
		}
	}
	b.subs = make(map[string]map[*Subscription]struct{})
}
