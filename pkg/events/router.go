package events

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// DefaultTopic carries conversation events.
const DefaultTopic = "conversation"

// EventRouter bundles a publisher, a subscriber and a watermill router that
// fans conversation events out to named handlers. Without options it runs on
// an in-process go channel.
//
// Delivery order is not guaranteed: the go channel hands every message to its
// own goroutine. Consumers order by Event.Seq.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	closers    []func() error
	// set when one go channel serves as both publisher and subscriber
	sharedPubSub bool

	closeOnce sync.Once
	closeErr  error
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithPublisher(publisher message.Publisher) EventRouterOption {
	return func(r *EventRouter) {
		r.Publisher = publisher
	}
}

func WithSubscriber(subscriber message.Subscriber) EventRouterOption {
	return func(r *EventRouter) {
		r.Subscriber = subscriber
	}
}

// WithCloser registers a cleanup function that runs after the router has been
// closed, e.g. for the client backing an external pub/sub.
func WithCloser(f func() error) EventRouterOption {
	return func(r *EventRouter) {
		r.closers = append(r.closers, f)
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: NewWatermillLogger(log.Logger),
	}
	for _, o := range options {
		o(ret)
	}

	if ret.Publisher == nil || ret.Subscriber == nil {
		goPubSub := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, ret.logger)
		if ret.Publisher == nil {
			ret.Publisher = goPubSub
		}
		if ret.Subscriber == nil {
			ret.Subscriber = goPubSub
		}
		ret.sharedPubSub = ret.Publisher == message.Publisher(goPubSub) &&
			ret.Subscriber == message.Subscriber(goPubSub)
	}

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	return ret, nil
}

// AddHandler registers f for every message on topic. Handlers have to be added
// before Run.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

// Close shuts down the publisher first so no new events arrive, then the
// router with its handlers. Calling it more than once is fine.
func (e *EventRouter) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.close()
	})
	return e.closeErr
}

func (e *EventRouter) close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close publisher")
	}
	err := e.router.Close()
	if err != nil {
		log.Error().Err(err).Msg("failed to close router")
	}
	if !e.sharedPubSub {
		if err := e.Subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close subscriber")
		}
	}
	for _, c := range e.closers {
		if cerr := c(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to run router closer")
		}
	}
	return err
}
