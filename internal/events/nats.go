package events

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix prefixes NATS subjects; the event kind is appended.
const DefaultSubjectPrefix = "streamwatch"

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// NATSPublisher exports events to a NATS server as JSON, one subject per
// kind: <prefix>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// DialNATS connects to the configured server.
func DialNATS(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	name := cfg.Name
	if name == "" {
		name = "streamwatch"
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSPublisher(nc, prefix, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject events of kind are published on.
func (p *NATSPublisher) Subject(kind Kind) string {
	return p.prefix + "." + string(kind)
}

// Publish implements Publisher. nats.Conn buffers writes internally, so this
// does not wait on the network; errors are logged.
func (p *NATSPublisher) Publish(e Event) {
	data, err := e.Encode()
	if err != nil {
		p.logger.Warn("event_encode_failed", "kind", e.Kind, "stream_id", e.StreamID, "error", err)
		return
	}
	if err := p.conn.Publish(p.Subject(e.Kind), data); err != nil {
		p.logger.Warn("nats_publish_failed", "kind", e.Kind, "stream_id", e.StreamID, "error", err)
	}
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
