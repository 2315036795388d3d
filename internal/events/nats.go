package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/cartridge/agentbridge/internal/types"
)

// NATSPublisher implements Publisher using NATS
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher creates a new NATS-backed publisher
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL, nats.Name("agentbridge"))
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Close flushes pending messages and closes the NATS connection
func (n *NATSPublisher) Close() {
	if n.conn != nil {
		if err := n.conn.Flush(); err != nil {
			n.logger.Warn().Err(err).Msg("Failed to flush NATS connection")
		}
		n.conn.Close()
	}
}

// Subject returns the per-game subject of a result.
func (n *NATSPublisher) Subject(result types.MatchResult) string {
	return n.subject + "." + result.Game
}

// PublishMatchResult publishes a match event to NATS. Failed matches are also
// published to <subject>.failed.
func (n *NATSPublisher) PublishMatchResult(_ context.Context, result types.MatchResult) error {
	data, err := json.Marshal(NewMatchEvent(result))
	if err != nil {
		return err
	}

	subject := n.Subject(result)
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish match result")
		return err
	}

	if result.Status == types.MatchStatusFailed {
		failed := n.subject + ".failed"
		if err := n.conn.Publish(failed, data); err != nil {
			n.logger.Error().Err(err).Str("subject", failed).Msg("Failed to publish to failure subject")
		}
	}

	n.logger.Debug().
		Str("match_id", result.ID).
		Str("status", string(result.Status)).
		Str("subject", subject).
		Msg("Published match result")

	return nil
}
