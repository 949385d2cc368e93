// Package events connects the tracker to NATS.  Card gateways publish raw
// pings on a subject the tracker queue-subscribes to, and every recorded
// location or lifecycle change is fanned out as JSON for live consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/config"
	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/service"
)

// Bus wraps a NATS connection.
type Bus struct {
	conn            *nats.Conn
	locationSubject string
	log             logrus.FieldLogger
}

// Connect dials NATS.  The token is only sent when configured.
func Connect(cfg config.BrokerConfig, log logrus.FieldLogger) (*Bus, error) {
	opts := []nats.Option{
		nats.Name("card-tracking"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
	}
	return NewBus(nc, cfg.LocationSubject, log), nil
}

// NewBus wraps an existing connection.
func NewBus(nc *nats.Conn, locationSubject string, log logrus.FieldLogger) *Bus {
	if locationSubject == "" {
		locationSubject = string(queue.EventLocationRecorded)
	}
	return &Bus{conn: nc, locationSubject: locationSubject, log: log.WithField("component", "nats")}
}

// Subject returns the subject an event is published on.  Lifecycle events
// use their type name.
func (b *Bus) Subject(evt queue.CardEvent) string {
	if evt.Type == queue.EventLocationRecorded {
		return b.locationSubject
	}
	return string(evt.Type)
}

// Publish implements service.EventPublisher.
func (b *Bus) Publish(_ context.Context, evt queue.CardEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.conn.Publish(b.Subject(evt), data)
}

// PingHandler consumes a decoded ping.
type PingHandler func(ctx context.Context, p service.Ping) error

// wirePing is the gateway payload.
type wirePing struct {
	CardID            string    `json:"card_id"`
	Latitude          *float64  `json:"latitude"`
	Longitude         *float64  `json:"longitude"`
	Accuracy          *float64  `json:"accuracy,omitempty"`
	BatteryPercentage *int      `json:"battery_percentage,omitempty"`
	RecordedAt        time.Time `json:"recorded_at,omitempty"`
}

// DecodePing parses a gateway payload.  Card id and both coordinates are
// required; range checks are left to the service.
func DecodePing(data []byte) (service.Ping, error) {
	var w wirePing
	if err := json.Unmarshal(data, &w); err != nil {
		return service.Ping{}, fmt.Errorf("decode ping: %w", err)
	}
	if w.CardID == "" {
		return service.Ping{}, fmt.Errorf("decode ping: missing card_id")
	}
	if w.Latitude == nil || w.Longitude == nil {
		return service.Ping{}, fmt.Errorf("decode ping %s: missing coordinates", w.CardID)
	}
	return service.Ping{
		CardID:            w.CardID,
		Latitude:          *w.Latitude,
		Longitude:         *w.Longitude,
		Accuracy:          w.Accuracy,
		BatteryPercentage: w.BatteryPercentage,
		RecordedAt:        w.RecordedAt,
	}, nil
}

// SubscribePings joins queue group on subject so several tracker instances
// share the ping stream.  Malformed or rejected pings are logged and
// dropped; NATS core has no redelivery to ask for.
func (b *Bus) SubscribePings(subject, group string, timeout time.Duration, handle PingHandler) (*nats.Subscription, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return b.conn.QueueSubscribe(subject, group, func(m *nats.Msg) {
		b.handlePing(m.Data, timeout, handle)
	})
}

func (b *Bus) handlePing(data []byte, timeout time.Duration, handle PingHandler) {
	p, err := DecodePing(data)
	if err != nil {
		b.log.WithError(err).Warn("dropping malformed ping")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := handle(ctx, p); err != nil {
		b.log.WithError(err).WithField("card_id", p.CardID).Warn("ping rejected")
	}
}

// Close drains pending messages before closing the connection.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}
