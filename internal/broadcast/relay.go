package broadcast

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dutchiono/restaurant-pos-system/internal/connections/rabbitmq"
	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
)

// Relay mirrors broadcast events onto an AMQP topic exchange so displays
// outside the process consume the same stream. Routing key is
// "<channel>.<kind>" with the kind's colon folded to a dot, e.g.
// "kitchen.order.new". Delivery is at-least-once; consumers deduplicate on
// (entity, seq) exactly like in-process subscribers.
type Relay struct {
	mq       *rabbitmq.Client
	exchange string
	lg       *logger.Logger
}

func NewRelay(mq *rabbitmq.Client, exchange string, lg *logger.Logger) *Relay {
	return &Relay{mq: mq, exchange: exchange, lg: lg}
}

// Run declares the exchange and forwards events from sub until the context
// ends or the subscription closes. A failed publish is logged and skipped;
// the in-process stream must not stall behind the broker.
func (r *Relay) Run(ctx context.Context, sub *Subscription) error {
	if err := r.mq.DeclareTopic(r.exchange); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			r.forward(ctx, sub.Channel(), ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, subChannel string, ev domain.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		r.lg.Error("relay_marshal_failed", err, map[string]any{"entity": ev.EntityKey()})
		return
	}
	channels := []string{subChannel}
	if subChannel == ChannelAll {
		channels = ev.Channels()
	}
	for _, ch := range channels {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = r.mq.Publish(pctx, r.exchange, routingKey(ch, ev.Kind()), body, amqp.Table{
			"x-entity": ev.EntityKey(),
			"x-seq":    int64(ev.Sequence()),
		})
		cancel()
		if err != nil {
			r.lg.Error("relay_publish_failed", err, map[string]any{"entity": ev.EntityKey(), "seq": ev.Sequence()})
			continue
		}
		r.lg.Debug("relay_published", map[string]any{"entity": ev.EntityKey(), "seq": ev.Sequence(), "kind": string(ev.Kind())})
	}
}

func routingKey(channel string, kind domain.EventKind) string {
	return channel + "." + strings.ReplaceAll(string(kind), ":", ".")
}
