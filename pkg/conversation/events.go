package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type EventType string

const (
	EventTurnSubmitted  EventType = "turn-submitted"
	EventTurnSettled    EventType = "turn-settled"
	EventTurnRolledBack EventType = "turn-rolled-back"
)

// Event describes one reconciler transition together with both views as they
// are right after it. Seq increases monotonically per Reconciler.
type Event struct {
	Type          EventType `json:"type"`
	Seq           uint64    `json:"seq"`
	TurnID        string    `json:"turn_id"`
	Input         string    `json:"input,omitempty"`
	BoundaryFound bool      `json:"boundary_found,omitempty"`
	Error         string    `json:"error,omitempty"`
	Transcript    []Entry   `json:"transcript"`
	Rendered      []Entry   `json:"rendered"`
	Time          time.Time `json:"time"`
}

// EventSink receives reconciler events. Implementations must not call back
// into the Reconciler.
type EventSink interface {
	PublishEvent(e Event) error
}

func NewEventFromJSON(b []byte) (*Event, error) {
	e := &Event{}
	if err := json.Unmarshal(b, e); err != nil {
		return nil, errors.Wrap(err, "could not decode conversation event")
	}
	if e.Type == "" {
		return nil, errors.New("conversation event without type")
	}
	return e, nil
}

type turnIDKey struct{}

// WithTurnID attaches a turn ID to ctx so transports can forward it.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

func TurnIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(turnIDKey{}).(string)
	return id, ok && id != ""
}
