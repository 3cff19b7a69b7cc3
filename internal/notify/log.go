package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nurpe/jurisconnect/internal/model"
)

// LogPublisher records intents in the service log. Used when no broker is
// configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, intents []model.Intent) error {
	for _, intent := range intents {
		event := p.log.Info().
			Str("kind", string(intent.Kind)).
			Str("recipient", string(intent.Recipient)).
			Str("request_id", intent.RequestID.String()).
			Str("status", string(intent.Status))
		if intent.RecipientID != nil {
			event = event.Str("recipient_id", intent.RecipientID.String())
		}
		event.Msg("notification")
	}
	return nil
}
