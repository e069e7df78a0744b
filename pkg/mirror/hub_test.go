package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(seq uint64, rendered ...conversation.Entry) *conversation.Event {
	return &conversation.Event{
		Type:     conversation.EventTurnSettled,
		Seq:      seq,
		TurnID:   "t",
		Rendered: rendered,
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) conversation.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e conversation.Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestHubKeepsNewestSnapshot(t *testing.T) {
	h := NewHub()
	_, ok := h.Latest()
	assert.False(t, ok)

	assert.True(t, h.HandleEvent(event(2)))
	assert.False(t, h.HandleEvent(event(1)))
	assert.False(t, h.HandleEvent(event(2)))
	assert.True(t, h.HandleEvent(event(5)))
	assert.False(t, h.HandleEvent(nil))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.Seq)
}

func TestSnapshotEndpoint(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	h.HandleEvent(event(3, conversation.NewUserEntry("hi")))

	resp, err = http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var e conversation.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, uint64(3), e.Seq)
	assert.Equal(t, []conversation.Entry{conversation.NewUserEntry("hi")}, e.Rendered)

	resp2, err := http.Post(srv.URL+"/snapshot", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	_ = resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestWebsocketReceivesSnapshotThenBroadcasts(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Close()

	h.HandleEvent(event(1, conversation.NewUserEntry("hi"), conversation.NewPlaceholderEntry()))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	first := readEvent(t, conn)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Len(t, first.Rendered, 2)

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	h.HandleEvent(event(0))
	h.HandleEvent(event(4, conversation.NewUserEntry("hi"), conversation.NewAssistantEntry("hello")))

	next := readEvent(t, conn)
	assert.Equal(t, uint64(4), next.Seq)
	assert.Equal(t, conversation.NewAssistantEntry("hello"), next.Rendered[1])
}

func TestHandlerFuncFeedsHub(t *testing.T) {
	h := NewHub()
	f := h.HandlerFunc()

	payload, err := json.Marshal(event(7))
	require.NoError(t, err)
	require.NoError(t, f(message.NewMessage("1", payload)))
	require.NoError(t, f(message.NewMessage("2", []byte("{"))))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(7), latest.Seq)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("mirror did not stop")
	}
}

func TestHandleEventDoesNotWaitForStalledClient(t *testing.T) {
	h := NewHub()
	stalled := newStubConn()
	stalled.release = make(chan struct{})
	h.pool.add(stalled)

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 50; i++ {
			h.HandleEvent(event(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleEvent blocked on a stalled client")
	}

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(50), latest.Seq)

	h.Close()
	assert.True(t, stalled.IsClosed())
}
