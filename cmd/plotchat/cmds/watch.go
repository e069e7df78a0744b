package cmds

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/events"
	"github.com/go-go-golems/plotchat/pkg/mirror"
	"github.com/go-go-golems/plotchat/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// WatchCommand follows the conversation events another plotchat process
// publishes to Redis Streams.
type WatchCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*WatchCommand)(nil)

type WatchSettings struct {
	Topic      string `glazed:"topic"`
	MirrorAddr string `glazed:"mirror-addr"`

	Redis redisstream.Settings
}

func NewWatchCommand() (*WatchCommand, error) {
	d := redisstream.DefaultSettings()
	d.Enabled = true
	// a group of its own, sharing the chat's group would split the stream
	d.Group = "plotchat-watch"
	redisSection, err := redisstream.NewSection(d)
	if err != nil {
		return nil, errors.Wrap(err, "build redis section")
	}

	return &WatchCommand{
		CommandDescription: cmds.NewCommandDescription(
			"watch",
			cmds.WithShort("Print conversation events read from Redis Streams"),
			cmds.WithFlags(
				fields.New(
					"topic",
					fields.TypeString,
					fields.WithHelp("Stream carrying the conversation events"),
					fields.WithDefault(events.DefaultTopic),
				),
				fields.New(
					"mirror-addr",
					fields.TypeString,
					fields.WithHelp("Also serve the live conversation mirror on this address"),
					fields.WithDefault(""),
				),
			),
			cmds.WithSections(redisSection),
		),
	}, nil
}

func (c *WatchCommand) RunIntoWriter(ctx context.Context, parsedValues *values.Values, w io.Writer) error {
	s := &WatchSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "init watch settings")
	}
	if err := parsedValues.DecodeSectionInto(redisstream.SectionSlug, &s.Redis); err != nil {
		return errors.Wrap(err, "init redis settings")
	}
	if !s.Redis.Enabled {
		return errors.New("watch reads from Redis Streams, --redis-enabled must be set")
	}

	if err := redisstream.EnsureGroupAtTail(ctx, s.Redis, s.Topic); err != nil {
		return err
	}
	log.Info().Str("addr", s.Redis.Addr).Str("group", s.Redis.Group).Str("topic", s.Topic).Msg("watching conversation events")
	router, err := redisstream.BuildRouter(s.Redis)
	if err != nil {
		return errors.Wrap(err, "create redis event router")
	}
	defer func() { _ = router.Close() }()

	return watchEvents(ctx, router, s, w)
}

// watchEvents prints every event on s.Topic until ctx is done.
func watchEvents(ctx context.Context, router *events.EventRouter, s *WatchSettings, w io.Writer) error {
	var mu sync.Mutex
	router.AddHandler("watch", s.Topic, events.ConversationHandlerFunc("watch", func(e *conversation.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if err := printEvent(w, e); err != nil {
			log.Warn().Err(err).Msg("could not print event")
		}
		return nil
	}))

	var hub *mirror.Hub
	if s.MirrorAddr != "" {
		hub = mirror.NewHub()
		router.AddHandler("mirror", s.Topic, hub.HandlerFunc())
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	if hub != nil {
		eg.Go(func() error {
			select {
			case <-router.Running():
			case <-ctx.Done():
				return nil
			}
			return hub.Run(ctx, s.MirrorAddr)
		})
	}
	return eg.Wait()
}

func printEvent(w io.Writer, e *conversation.Event) error {
	line := fmt.Sprintf("#%d %s turn=%s rendered=%d transcript=%d",
		e.Seq, e.Type, e.TurnID, len(e.Rendered), len(e.Transcript))
	if e.Error != "" {
		line += " error=" + e.Error
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func newWatchCobraCommand() *cobra.Command {
	watchCmd, err := NewWatchCommand()
	cobra.CheckErr(err)
	command, err := cli.BuildCobraCommand(watchCmd)
	cobra.CheckErr(err)
	return command
}
