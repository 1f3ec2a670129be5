// Copyright 2025 James Ross
// Package eventbus optionally republishes dispatch events onto NATS, for
// external consumers watching a run live. It implements dispatch.EventSink,
// trimmed from the teacher's full subscription/filter/JetStream machinery
// down to a single fire-and-forget publish: a batch run has one event stream
// and no durable subscriber registry to manage.
package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

// Publisher publishes dispatch events to a single NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

// New connects to cfg.EventBus.URL and returns a Publisher, or nil, nil if
// the event bus is disabled in configuration.
func New(cfg *config.Config, log *zap.Logger) (*Publisher, error) {
	if !cfg.EventBus.Enabled {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.EventBus.URL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}
	return &Publisher{conn: conn, subject: cfg.EventBus.Subject, log: log}, nil
}

// Publish marshals ev and publishes it to the configured subject. Publish
// failures are logged as warnings, matching the NATS publisher's own
// not-fatal error handling; a dispatch run never blocks on a down event bus.
func (p *Publisher) Publish(ev model.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("eventbus: marshal failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.log.Warn("eventbus: publish failed",
			zap.String("subject", p.subject), zap.String("type", ev.Type), zap.Error(err))
	}
}

// Close drains and closes the underlying NATS connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
