package conversation

// DefaultLookback is how many trailing reply entries are searched for the
// echoed user entry.
const DefaultLookback = 10

// findTurnStart searches the last lookback entries of reply, newest first, for
// the user entry that opened the current turn. It returns -1 when there is none.
func findTurnStart(reply []Entry, input string, lookback int) int {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	stop := len(reply) - lookback
	if stop < 0 {
		stop = 0
	}
	for i := len(reply) - 1; i >= stop; i-- {
		if reply[i].Role == RoleUser && reply[i].Content == input {
			return i
		}
	}
	return -1
}

// alignKnown merges the locally rendered stream (prior) with the backend's
// account of the same history (known).
//
// API entries follow the backend. Render-only entries of prior are kept for as
// long as both histories agree; render-only entries of known inside the agreed
// region are dropped because prior already holds the local rendering of that
// region. From the first disagreement on, the rest of known is taken as is.
// When prior and known agree completely the result equals prior.
func alignKnown(prior, known []Entry) []Entry {
	ret := make([]Entry, 0, len(prior)+len(known))

	k := 0
	for _, e := range prior {
		if e.Role.IsRenderOnly() {
			ret = append(ret, e)
			continue
		}
		j := k
		for j < len(known) && known[j].Role.IsRenderOnly() {
			j++
		}
		if j >= len(known) || known[j] != e {
			break
		}
		ret = append(ret, e)
		k = j + 1
	}

	return append(ret, known[k:]...)
}
