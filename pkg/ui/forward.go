package ui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/events"
	"github.com/rs/zerolog/log"
)

// StreamChangedMsg tells the chat model that the rendered stream changed.
type StreamChangedMsg struct {
	Event conversation.Event
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// StreamForwardFunc forwards conversation events from the bus into the
// bubbletea program p.
func StreamForwardFunc(p Sender) func(msg *message.Message) error {
	return events.ConversationHandlerFunc("ui_forward", func(e *conversation.Event) error {
		log.Trace().Str("event_type", string(e.Type)).Uint64("seq", e.Seq).Msg("Dispatching event to UI")
		p.Send(StreamChangedMsg{Event: *e})
		return nil
	})
}
