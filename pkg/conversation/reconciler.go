package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrTurnInFlight = errors.New("a turn is already in flight")
	ErrUnknownTurn  = errors.New("turn is not in flight")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Transport sends the transcript to the chat backend and returns the backend's
// full view of the conversation, including the new turn.
type Transport interface {
	Send(ctx context.Context, transcript []Entry) ([]Entry, error)
}

type TransportFunc func(ctx context.Context, transcript []Entry) ([]Entry, error)

func (f TransportFunc) Send(ctx context.Context, transcript []Entry) ([]Entry, error) {
	return f(ctx, transcript)
}

// Turn is one submit cycle. It is handed out by Submit and has to be passed
// back to exactly one of Settle or Rollback.
type Turn struct {
	ID         string
	Input      string
	Transcript []Entry
	StartedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	prior  []Entry
}

// Context is cancelled when the turn is cancelled or completed.
func (t *Turn) Context() context.Context {
	return t.ctx
}

func (t *Turn) Cancel() {
	t.cancel()
}

// Outcome summarizes a completed turn. A zero TurnID means nothing was
// submitted (empty input).
type Outcome struct {
	TurnID        string
	Settled       bool
	BoundaryFound bool
	// Added holds the entries this turn contributed after the prior stream: the
	// new turn on success, the user entry on rollback.
	Added []Entry
	// Err is the transport error that caused a rollback.
	Err error
}

type Snapshot struct {
	Phase        Phase
	ActiveTurnID string
	Transcript   []Entry
	Rendered     []Entry
	Version      int64
	Turns        int
}

type ReconcilerOption func(*Reconciler)

// WithLookback sets how many trailing reply entries the boundary search visits.
func WithLookback(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.lookback = n
		}
	}
}

func WithEventSink(sink EventSink) ReconcilerOption {
	return func(r *Reconciler) {
		if sink != nil {
			r.sinks = append(r.sinks, sink)
		}
	}
}

// Reconciler owns the conversation state and drives one submit cycle at a
// time: Idle -> Submitting -> (Settled | RolledBack) -> Idle.
type Reconciler struct {
	mu       sync.Mutex
	state    State
	phase    Phase
	active   *Turn
	lookback int
	seq      uint64
	turns    int

	sinks []EventSink
}

func NewReconciler(options ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		lookback: DefaultLookback,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Submit starts a turn for input. Whitespace-only input is ignored and yields
// a nil Turn without error. A second Submit while a turn is in flight fails
// with ErrTurnInFlight.
func (r *Reconciler) Submit(ctx context.Context, input string) (*Turn, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	r.mu.Lock()
	if r.phase == PhaseSubmitting {
		r.mu.Unlock()
		return nil, ErrTurnInFlight
	}

	user := NewUserEntry(input)
	prior := r.state.Rendered()

	transcript := append(r.state.Transcript(), user)
	r.state.setTranscript(transcript)

	rendered := make([]Entry, 0, len(prior)+2)
	rendered = append(rendered, prior...)
	rendered = append(rendered, user, NewPlaceholderEntry())
	r.state.setRendered(rendered)

	id := uuid.NewString()
	turnCtx, cancel := context.WithCancel(WithTurnID(ctx, id))
	turn := &Turn{
		ID:         id,
		Input:      input,
		Transcript: r.state.Transcript(),
		StartedAt:  time.Now(),
		ctx:        turnCtx,
		cancel:     cancel,
		prior:      prior,
	}
	r.active = turn
	r.phase = PhaseSubmitting

	ev := r.eventLocked(EventTurnSubmitted, turn)
	r.mu.Unlock()

	log.Debug().
		Str("turn_id", turn.ID).
		Int("transcript_len", len(turn.Transcript)).
		Msg("turn submitted")
	r.publish(ev)

	return turn, nil
}

// Settle merges the backend reply into both views and returns to Idle.
func (r *Reconciler) Settle(turn *Turn, reply []Entry) (Outcome, error) {
	r.mu.Lock()
	if turn == nil || r.active != turn {
		r.mu.Unlock()
		return Outcome{}, ErrUnknownTurn
	}

	r.state.setTranscript(reply)

	outcome := Outcome{TurnID: turn.ID, Settled: true}
	var rendered []Entry
	if idx := findTurnStart(reply, turn.Input, r.lookback); idx >= 0 {
		outcome.BoundaryFound = true
		outcome.Added = cloneEntries(reply[idx:])
		rendered = append(alignKnown(turn.prior, reply[:idx]), outcome.Added...)
	} else {
		// keep everything, even if that shows part of the history twice
		outcome.Added = cloneEntries(reply)
		rendered = make([]Entry, 0, len(turn.prior)+len(reply))
		rendered = append(rendered, turn.prior...)
		rendered = append(rendered, reply...)
	}
	r.state.setRendered(rendered)

	r.finishLocked(turn)
	ev := r.eventLocked(EventTurnSettled, turn)
	ev.BoundaryFound = outcome.BoundaryFound
	r.mu.Unlock()

	if !outcome.BoundaryFound {
		log.Warn().
			Str("turn_id", turn.ID).
			Int("reply_len", len(reply)).
			Int("lookback", r.lookback).
			Msg("could not locate the submitted message in the reply, appending the full reply")
	} else {
		log.Debug().
			Str("turn_id", turn.ID).
			Int("added", len(outcome.Added)).
			Msg("turn settled")
	}
	r.publish(ev)

	return outcome, nil
}

// Rollback discards the placeholder after a failed transport call. The user
// entry stays visible and the transcript keeps it as well.
func (r *Reconciler) Rollback(turn *Turn, cause error) (Outcome, error) {
	r.mu.Lock()
	if turn == nil || r.active != turn {
		r.mu.Unlock()
		return Outcome{}, ErrUnknownTurn
	}

	user := NewUserEntry(turn.Input)
	rendered := make([]Entry, 0, len(turn.prior)+1)
	rendered = append(rendered, turn.prior...)
	rendered = append(rendered, user)
	r.state.setRendered(rendered)

	r.finishLocked(turn)
	ev := r.eventLocked(EventTurnRolledBack, turn)
	if cause != nil {
		ev.Error = cause.Error()
	}
	r.mu.Unlock()

	log.Warn().Err(cause).Str("turn_id", turn.ID).Msg("turn rolled back")
	r.publish(ev)

	return Outcome{TurnID: turn.ID, Added: []Entry{user}, Err: cause}, nil
}

// Exchange runs a complete cycle for input against t. Transport failures are
// recovered by rolling back and reported in Outcome.Err; the returned error is
// only set when the turn could not be started or completed at all.
func (r *Reconciler) Exchange(ctx context.Context, t Transport, input string) (Outcome, error) {
	turn, err := r.Submit(ctx, input)
	if err != nil {
		return Outcome{}, err
	}
	if turn == nil {
		return Outcome{}, nil
	}

	reply, err := t.Send(turn.Context(), turn.Transcript)
	if err != nil {
		return r.Rollback(turn, errors.Wrap(err, "chat transport failed"))
	}
	return r.Settle(turn, reply)
}

// Cancel aborts the in-flight turn, if any. The transport observes the
// cancelled context and the turn is rolled back by whoever owns it.
func (r *Reconciler) Cancel() bool {
	r.mu.Lock()
	turn := r.active
	r.mu.Unlock()
	if turn == nil {
		return false
	}
	log.Debug().Str("turn_id", turn.ID).Msg("cancelling turn")
	turn.Cancel()
	return true
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Phase:      r.phase,
		Transcript: r.state.Transcript(),
		Rendered:   r.state.Rendered(),
		Version:    r.state.Version(),
		Turns:      r.turns,
	}
	if r.active != nil {
		s.ActiveTurnID = r.active.ID
	}
	return s
}

func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Reconciler) finishLocked(turn *Turn) {
	turn.cancel()
	r.active = nil
	r.phase = PhaseIdle
	r.turns++
}

func (r *Reconciler) eventLocked(t EventType, turn *Turn) Event {
	r.seq++
	return Event{
		Type:       t,
		Seq:        r.seq,
		TurnID:     turn.ID,
		Input:      turn.Input,
		Transcript: r.state.Transcript(),
		Rendered:   r.state.Rendered(),
		Time:       time.Now(),
	}
}

func (r *Reconciler) publish(e Event) {
	for _, s := range r.sinks {
		if err := s.PublishEvent(e); err != nil {
			log.Error().Err(err).
				Str("event_type", string(e.Type)).
				Str("turn_id", e.TurnID).
				Msg("failed to publish conversation event")
		}
	}
}
