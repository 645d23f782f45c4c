package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"graph-cdc/internal/config"
	"graph-cdc/internal/models"
)

// Publisher ships encoded change envelopes to NATS. One envelope per change,
// fire and forget; delivery guarantees belong to the consumer side.
type Publisher struct {
	conn    *nats.Conn
	subject string
	encoder models.Encoder
	logger  *logrus.Logger
}

// NewPublisher connects to NATS with reconnect handling.
func NewPublisher(cfg config.NATSConfig, encoder models.Encoder, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Infof("Connected to NATS at %s", cfg.URL)

	return &Publisher{
		conn:    conn,
		subject: cfg.Subject,
		encoder: encoder,
		logger:  logger,
	}, nil
}

// Publish encodes a finalized change and publishes the envelope verbatim.
// An encode failure means the upstream handed us an unrepresentable property
// value; the caller should drop that single change, not stop capturing.
func (p *Publisher) Publish(change *models.SourceChange) error {
	data, err := p.encoder.Encode(change)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}

	p.logger.Debugf("Published %s change for %s element (lsn %d)", change.Op(), change.Element().Table(), change.Seq())
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
