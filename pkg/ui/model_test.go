package ui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounter struct{ n int }

func (c staticCounter) CountTranscript(entries []conversation.Entry) (int, error) {
	return c.n * len(entries), nil
}

func echoTransport(reply string) conversation.Transport {
	return conversation.TransportFunc(func(ctx context.Context, transcript []conversation.Entry) ([]conversation.Entry, error) {
		return append(append([]conversation.Entry{}, transcript...), conversation.NewAssistantEntry(reply)), nil
	})
}

func newTestModel(t conversation.Transport) (Model, *conversation.Reconciler) {
	r := conversation.NewReconciler()
	m := NewModel(context.Background(), NewTransportBackend(r, t),
		WithRenderer(newTestRenderer()),
		WithTokenCounter(staticCounter{n: 3}),
	)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 30})
	return updated.(Model), r
}

// runCmd executes cmd and flattens batches into the resulting messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var ret []tea.Msg
		for _, c := range batch {
			ret = append(ret, runCmd(c)...)
		}
		return ret
	}
	return []tea.Msg{msg}
}

func findMsg[T any](msgs []tea.Msg) (T, bool) {
	for _, msg := range msgs {
		if m, ok := msg.(T); ok {
			return m, true
		}
	}
	var zero T
	return zero, false
}

func typeAndSubmit(m Model, text string) (Model, tea.Cmd) {
	m.input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

func TestModelSubmitAndSettle(t *testing.T) {
	m, r := newTestModel(echoTransport("Here is your chart."))

	m, cmd := typeAndSubmit(m, "plot sales")
	require.NotNil(t, cmd)
	assert.True(t, m.submitting())
	assert.Equal(t, "", m.input.Value())
	assert.Contains(t, m.View(), "plot sales")
	assert.Contains(t, m.View(), "thinking")

	// a second enter while in flight is ignored
	m2, cmd2 := typeAndSubmit(m, "again")
	assert.Nil(t, cmd2)
	assert.Equal(t, 1, len(r.Snapshot().Transcript))
	_ = m2

	settled, ok := findMsg[TurnSettledMsg](runCmd(cmd))
	require.True(t, ok)
	assert.True(t, settled.Outcome.BoundaryFound)

	updated, _ := m.Update(settled)
	m = updated.(Model)
	assert.False(t, m.submitting())
	assert.Equal(t, 1, m.snap.Turns)
	assert.Equal(t, 6, m.tokens)

	view := m.View()
	assert.Contains(t, view, "Here is your chart.")
	assert.NotContains(t, view, "thinking")
	assert.Contains(t, view, "1 turns")
}

func TestModelEmptyInputDoesNothing(t *testing.T) {
	m, r := newTestModel(echoTransport("unused"))
	m, cmd := typeAndSubmit(m, "   ")
	assert.Nil(t, cmd)
	assert.False(t, m.submitting())
	assert.Empty(t, r.Snapshot().Rendered)
}

func TestModelTransportFailureKeepsUserEntry(t *testing.T) {
	failing := conversation.TransportFunc(func(ctx context.Context, transcript []conversation.Entry) ([]conversation.Entry, error) {
		return nil, assert.AnError
	})
	m, _ := newTestModel(failing)

	m, cmd := typeAndSubmit(m, "plot sales")
	failed, ok := findMsg[TurnFailedMsg](runCmd(cmd))
	require.True(t, ok)
	require.Error(t, failed.Err)

	updated, _ := m.Update(failed)
	m = updated.(Model)
	assert.False(t, m.submitting())
	assert.Contains(t, m.lastErr, "chat transport failed")

	view := m.View()
	assert.Contains(t, view, "plot sales")
	assert.NotContains(t, view, "thinking")
	assert.Equal(t, []conversation.Entry{conversation.NewUserEntry("plot sales")}, m.snap.Rendered)
}

func TestModelEscCancelsTurn(t *testing.T) {
	blocking := conversation.TransportFunc(func(ctx context.Context, transcript []conversation.Entry) ([]conversation.Entry, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m, _ := newTestModel(blocking)

	m, cmd := typeAndSubmit(m, "plot sales")
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.Equal(t, "cancelling…", m.notice)

	failed, ok := findMsg[TurnFailedMsg](runCmd(cmd))
	require.True(t, ok)
	updated, _ = m.Update(failed)
	m = updated.(Model)
	assert.Equal(t, "request cancelled", m.lastErr)
	assert.False(t, m.submitting())
}

func TestModelCopyLastReply(t *testing.T) {
	var copied string
	prev := clipboardWriteAll
	clipboardWriteAll = func(s string) error {
		copied = s
		return nil
	}
	defer func() { clipboardWriteAll = prev }()

	m, _ := newTestModel(echoTransport("the answer"))
	m, cmd := typeAndSubmit(m, "question")
	settled, ok := findMsg[TurnSettledMsg](runCmd(cmd))
	require.True(t, ok)
	updated, _ := m.Update(settled)
	m = updated.(Model)

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	m = updated.(Model)
	msgs := runCmd(cmd)
	require.Len(t, msgs, 1)
	assert.Equal(t, "the answer", copied)

	updated, _ = m.Update(msgs[0])
	m = updated.(Model)
	assert.Equal(t, "copied last reply to clipboard", m.notice)
}

func TestModelStreamChangedRefreshes(t *testing.T) {
	m, r := newTestModel(echoTransport("unused"))

	// another writer advanced the reconciler
	_, err := r.Exchange(context.Background(), echoTransport("from elsewhere"), "hi")
	require.NoError(t, err)

	updated, _ := m.Update(StreamChangedMsg{Event: conversation.Event{Type: conversation.EventTurnSettled, Seq: 2}})
	m = updated.(Model)
	assert.Contains(t, m.View(), "from elsewhere")
}

func TestModelCtrlCQuits(t *testing.T) {
	m, _ := newTestModel(echoTransport("unused"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
