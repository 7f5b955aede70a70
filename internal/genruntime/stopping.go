package genruntime

// StopMatcher decides when a generated token sequence has hit one of the
// request's stop sequences, encoded to token IDs once up front so the
// decoding loop never re-tokenizes per step.
//
// Three distinct checks compose the decision, mirroring the three ways a
// stop sequence can show up in token space: a single stop token can be
// the very last token emitted; a multi-token stop sequence is checked
// against the generated tail every step (the common case, since the loop
// calls this after every token); and a full contiguous scan catches a
// stop sequence that lands inside the tail window rather than flush
// against the end, which a pure tail check would miss by one step on
// some tokenizers' merge boundaries.
type StopMatcher struct {
	sequences [][]int
	maxLen    int
}

// NewStopMatcher builds a matcher from already-encoded stop sequences.
// Empty sequences are dropped; they can never match.
func NewStopMatcher(sequences [][]int) *StopMatcher {
	m := &StopMatcher{}
	for _, seq := range sequences {
		if len(seq) == 0 {
			continue
		}
		m.sequences = append(m.sequences, seq)
		if len(seq) > m.maxLen {
			m.maxLen = len(seq)
		}
	}
	return m
}

// Empty reports whether there are no stop sequences to check.
func (m *StopMatcher) Empty() bool {
	return len(m.sequences) == 0
}

// CheckTail reports whether generated's tail ends with one of the stop
// sequences, and which one matched.
func (m *StopMatcher) CheckTail(generated []int) ([]int, bool) {
	for _, seq := range m.sequences {
		if len(seq) == 1 {
			if generated[len(generated)-1] == seq[0] {
				return seq, true
			}
			continue
		}
		if len(generated) < len(seq) {
			continue
		}
		if sliceEqual(generated[len(generated)-len(seq):], seq) {
			return seq, true
		}
	}
	return nil, false
}

// ContainsInWindow scans the last window of generated tokens (window
// defaults to the longest stop sequence's length when w <= 0) for any
// stop sequence occurring anywhere within it, not just flush at the end.
func (m *StopMatcher) ContainsInWindow(generated []int, w int) ([]int, bool) {
	if w <= 0 {
		w = m.maxLen
	}
	start := len(generated) - w
	if start < 0 {
		start = 0
	}
	window := generated[start:]

	for _, seq := range m.sequences {
		if len(window) < len(seq) {
			continue
		}
		for i := 0; i+len(seq) <= len(window); i++ {
			if sliceEqual(window[i:i+len(seq)], seq) {
				return seq, true
			}
		}
	}
	return nil, false
}

func sliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
