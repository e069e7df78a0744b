package conversation

// State owns both views of the conversation. The transcript is what the backend
// sees; the rendered stream is what the user sees. Only the Reconciler mutates
// a State, and every accessor hands out a copy.
type State struct {
	transcript []Entry
	rendered   []Entry
	version    int64
}

func (s *State) Transcript() []Entry {
	return cloneEntries(s.transcript)
}

func (s *State) Rendered() []Entry {
	return cloneEntries(s.rendered)
}

// Version is incremented on every mutation of either view.
func (s *State) Version() int64 {
	return s.version
}

// Consistent reports whether the rendered stream, stripped of render-only
// entries, equals the transcript.
func (s *State) Consistent() bool {
	return equalEntries(APIEntries(s.rendered), s.transcript)
}

// setTranscript drops render-only entries so the transcript can never carry them.
func (s *State) setTranscript(entries []Entry) {
	s.transcript = APIEntries(entries)
	s.version++
}

func (s *State) setRendered(entries []Entry) {
	s.rendered = cloneEntries(entries)
	s.version++
}
