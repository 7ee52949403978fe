// Package pubsub is a thin NATS wrapper used to fan realtime events out
// across instances. Payloads are opaque bytes; encoding belongs to the
// caller.
package pubsub

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PubSub struct {
	nc        *nats.Conn
	published prometheus.Counter
	delivered prometheus.Counter
}

func New(nc *nats.Conn, reg prometheus.Registerer) *PubSub {
	return &PubSub{
		nc: nc,
		published: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "parley_pubsub_published_total",
			Help: "Events published to the pubsub bus.",
		}),
		delivered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "parley_pubsub_delivered_total",
			Help: "Events delivered to local subscribers.",
		}),
	}
}

func (ps *PubSub) Pub(topic string, data []byte) error {
	if err := ps.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}

	ps.published.Inc()
	return nil
}

// Sub delivers each payload on topic to handler until the returned
// unsubscribe func is called.
func (ps *PubSub) Sub(topic string, handler func(data []byte)) (func() error, error) {
	sub, err := ps.nc.Subscribe(topic, func(msg *nats.Msg) {
		ps.delivered.Inc()
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	return func() error {
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("nats unsubscribe: %w", err)
		}
		return nil
	}, nil
}
