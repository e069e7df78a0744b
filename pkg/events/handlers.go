package events

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/rs/zerolog/log"
)

// ConversationHandlerFunc builds a router handler that decodes each message
// and hands the event to f. Undecodable payloads are logged and acked so a
// bad message never blocks the topic.
func ConversationHandlerFunc(name string, f func(e *conversation.Event) error) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := conversation.NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).
				Str("component", name).
				Str("message_id", msg.UUID).
				Msg("dropping undecodable conversation event")
			return nil
		}
		return f(e)
	}
}

// LogEventsFunc logs every conversation event at debug level. Events may be
// logged out of order, the seq field gives the order they were published in.
func LogEventsFunc() func(msg *message.Message) error {
	return ConversationHandlerFunc("event_log", func(e *conversation.Event) error {
		l := log.Debug().
			Str("event_type", string(e.Type)).
			Uint64("seq", e.Seq).
			Str("turn_id", e.TurnID).
			Int("transcript_len", len(e.Transcript)).
			Int("rendered_len", len(e.Rendered))
		if e.Type == conversation.EventTurnSettled {
			l = l.Bool("boundary_found", e.BoundaryFound)
		}
		if e.Error != "" {
			l = l.Str("error", e.Error)
		}
		l.Msg("conversation event")
		return nil
	})
}
