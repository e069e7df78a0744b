package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/go-go-golems/plotchat/pkg/events"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// BuildRouter constructs an events.EventRouter backed by Redis Streams when enabled.
// If s.Enabled is false, it returns a default in-memory router.
func BuildRouter(s Settings) (*events.EventRouter, error) {
	if !s.Enabled {
		return events.NewEventRouter()
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := events.NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis stream publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis stream subscriber")
	}

	log.Debug().Str("addr", s.Addr).Str("group", s.Group).Str("consumer", s.Consumer).Msg("using redis streams for conversation events")

	return events.NewEventRouter(
		events.WithPublisher(message.Publisher(pub)),
		events.WithSubscriber(message.Subscriber(sub)),
		events.WithCloser(client.Close),
	)
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents replaying older conversations on first subscribe.
func EnsureGroupAtTail(ctx context.Context, s Settings, stream string) error {
	if !s.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	defer func() { _ = client.Close() }()

	err := client.XGroupCreateMkStream(ctx, stream, s.Group, "$").Err()
	if err != nil {
		// group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "could not create consumer group %s on %s", s.Group, stream)
	}
	log.Info().Str("stream", stream).Str("group", s.Group).Msg("created redis consumer group at $ (tail)")
	return nil
}
