package cmds

import (
	"context"
	"os"

	"github.com/go-go-golems/plotchat/pkg/chatrunner"
	"github.com/go-go-golems/plotchat/pkg/config"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/events"
	"github.com/go-go-golems/plotchat/pkg/mirror"
	"github.com/go-go-golems/plotchat/pkg/redisstream"
	"github.com/go-go-golems/plotchat/pkg/transport"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const modeTUI = config.ModeTUI

// resolveMode turns the configured ui mode into tui or line.
func resolveMode(mode string) string {
	switch mode {
	case config.ModeTUI, config.ModeLine:
		return mode
	}
	if isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd()) {
		return config.ModeTUI
	}
	return config.ModeLine
}

// newChatBuilder wires transport, event router and mirror from s. The returned
// router has to be closed by the caller.
func newChatBuilder(ctx context.Context, s *config.Settings) (*chatrunner.ChatBuilder, *events.EventRouter, error) {
	t := transport.NewHTTPTransport(
		transport.WithEndpoint(s.Transport.Endpoint),
		transport.WithQueryPath(s.Transport.QueryPath),
		transport.WithTimeout(s.Transport.Timeout),
	)
	log.Debug().Str("url", t.URL()).Msg("using chat backend")

	if err := redisstream.EnsureGroupAtTail(ctx, s.Redis, events.DefaultTopic); err != nil {
		return nil, nil, err
	}
	router, err := redisstream.BuildRouter(s.Redis)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create event router")
	}

	b := chatrunner.NewChatBuilder().
		WithContext(ctx).
		WithTransport(t).
		WithExternalRouter(router).
		WithReconcilerOptions(conversation.WithLookback(s.Lookback))

	if s.Mirror.Addr != "" {
		b = b.WithMirror(mirror.NewHub(), s.Mirror.Addr)
	}

	return b, router, nil
}
