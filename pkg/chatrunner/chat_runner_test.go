package chatrunner

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/mirror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func chartTransport() conversation.Transport {
	return conversation.TransportFunc(func(ctx context.Context, transcript []conversation.Entry) ([]conversation.Entry, error) {
		reply := append([]conversation.Entry{}, transcript...)
		return append(reply,
			conversation.NewAssistantEntry("Sales went up."),
			conversation.NewChartEntry(`{"data": [{"type": "line", "y": [1, 3, 2]}], "layout": {"title": "Sales"}}`),
		), nil
	})
}

func TestBuildValidation(t *testing.T) {
	_, err := NewChatBuilder().Build()
	assert.ErrorContains(t, err, "transport is required")

	_, err = NewChatBuilder().WithTransport(chartTransport()).WithMode(RunModeBlocking).Build()
	assert.ErrorContains(t, err, "prompt is required")

	_, err = NewChatBuilder().WithMode("bogus").WithTransport(chartTransport()).Build()
	assert.ErrorContains(t, err, "invalid run mode")

	// the first error sticks
	_, err = NewChatBuilder().WithOutputWriter(nil).WithTransport(chartTransport()).Build()
	assert.ErrorContains(t, err, "output writer cannot be nil")
}

func TestBlockingModePrintsReply(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var out bytes.Buffer
	session, err := NewChatBuilder().
		WithTransport(chartTransport()).
		WithMode(RunModeBlocking).
		WithPrompt("plot sales").
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)
	require.NoError(t, session.Run())

	s := out.String()
	assert.Contains(t, s, "Sales went up.")
	assert.Contains(t, s, "Sales")
	assert.NotContains(t, s, "plot sales")

	snap := session.Reconciler().Snapshot()
	assert.Equal(t, 1, snap.Turns)
	assert.Len(t, snap.Transcript, 2)
	assert.Len(t, snap.Rendered, 3)
}

func TestBlockingModeReturnsTransportError(t *testing.T) {
	failing := conversation.TransportFunc(func(ctx context.Context, transcript []conversation.Entry) ([]conversation.Entry, error) {
		return nil, assert.AnError
	})

	var out bytes.Buffer
	session, err := NewChatBuilder().
		WithTransport(failing).
		WithMode(RunModeBlocking).
		WithPrompt("plot sales").
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)

	err = session.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, out.String(), "! chat transport failed")
}

func TestLineModeRunsUntilEOF(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var out bytes.Buffer
	session, err := NewChatBuilder().
		WithTransport(chartTransport()).
		WithMode(RunModeLine).
		WithInputReader(strings.NewReader("first\nsecond\n")).
		WithOutputWriter(&out).
		WithMirror(mirror.NewHub(), "").
		Build()
	require.NoError(t, err)
	require.NoError(t, session.Run())

	assert.Equal(t, 2, strings.Count(out.String(), "Sales went up."))
	assert.Equal(t, 2, session.Reconciler().Snapshot().Turns)
}
