package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TurnSettledMsg is sent once the backend reply has been merged.
type TurnSettledMsg struct {
	Outcome conversation.Outcome
}

// TurnFailedMsg is sent when the transport failed and the turn was rolled
// back. The user entry stays on screen.
type TurnFailedMsg struct {
	Outcome conversation.Outcome
	Err     error
}

// Backend is what the chat model needs to drive a conversation.
type Backend interface {
	// Start submits input and returns a command that completes the turn. A nil
	// command without error means there was nothing to send.
	Start(ctx context.Context, input string) (tea.Cmd, error)
	// Interrupt cancels the in-flight turn and reports whether there was one.
	Interrupt() bool
	IsFinished() bool
	Snapshot() conversation.Snapshot
}

// TransportBackend runs turns of a Reconciler against a chat Transport.
type TransportBackend struct {
	reconciler *conversation.Reconciler
	transport  conversation.Transport
}

var _ Backend = &TransportBackend{}

func NewTransportBackend(r *conversation.Reconciler, t conversation.Transport) *TransportBackend {
	return &TransportBackend{
		reconciler: r,
		transport:  t,
	}
}

func (b *TransportBackend) Start(ctx context.Context, input string) (tea.Cmd, error) {
	turn, err := b.reconciler.Submit(ctx, input)
	if err != nil {
		return nil, err
	}
	if turn == nil {
		return nil, nil
	}

	return func() tea.Msg {
		reply, err := b.transport.Send(turn.Context(), turn.Transcript)
		if err != nil {
			cause := errors.Wrap(err, "chat transport failed")
			outcome, rerr := b.reconciler.Rollback(turn, cause)
			if rerr != nil {
				log.Error().Err(rerr).Str("turn_id", turn.ID).Msg("could not roll back turn")
			}
			return TurnFailedMsg{Outcome: outcome, Err: cause}
		}

		outcome, err := b.reconciler.Settle(turn, reply)
		if err != nil {
			log.Error().Err(err).Str("turn_id", turn.ID).Msg("could not settle turn")
			return TurnFailedMsg{Outcome: outcome, Err: err}
		}
		return TurnSettledMsg{Outcome: outcome}
	}, nil
}

func (b *TransportBackend) Interrupt() bool {
	if !b.reconciler.Cancel() {
		log.Debug().Msg("no turn in flight")
		return false
	}
	return true
}

func (b *TransportBackend) IsFinished() bool {
	return b.reconciler.Phase() == conversation.PhaseIdle
}

func (b *TransportBackend) Snapshot() conversation.Snapshot {
	return b.reconciler.Snapshot()
}
