package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// WatermillSink publishes conversation events as JSON messages on a topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ conversation.EventSink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(e conversation.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not encode conversation event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", string(e.Type))
	msg.Metadata.Set("turn_id", e.TurnID)

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		return errors.Wrapf(err, "could not publish to %s", w.topic)
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(e.Type)).Uint64("seq", e.Seq).Msg("published conversation event")
	return nil
}
