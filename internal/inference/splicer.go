package inference

import "strings"

// StopSplicer implements §4.4's stream-text splicing layer: it buffers
// just enough of the tail of accumulated text to avoid leaking a stop
// string's fragments downstream across chunk boundaries, without ever
// holding back more than the longest stop string minus one character.
type StopSplicer struct {
	stops       []string
	accumulated strings.Builder
	emittedLen  int
}

// NewStopSplicer builds a splicer over the effective stop-string list.
// Empty strings are dropped; they would match everywhere.
func NewStopSplicer(stops []string) *StopSplicer {
	s := &StopSplicer{}
	for _, stop := range stops {
		if stop != "" {
			s.stops = append(s.stops, stop)
		}
	}
	return s
}

// Feed appends chunk to the accumulated text and returns the portion
// safe to emit now. done is true once a stop string has been found, at
// which point no further Feed calls should be made.
func (s *StopSplicer) Feed(chunk string) (emit string, done bool) {
	s.accumulated.WriteString(chunk)
	full := s.accumulated.String()

	bestIdx := -1
	for _, stop := range s.stops {
		if idx := strings.Index(full, stop); idx >= 0 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
			}
		}
	}
	if bestIdx >= 0 {
		if bestIdx > s.emittedLen {
			emit = full[s.emittedLen:bestIdx]
		}
		s.emittedLen = len(full)
		return emit, true
	}

	withhold := 0
	for _, stop := range s.stops {
		for l := len(stop) - 1; l > 0; l-- {
			if l > len(full) {
				continue
			}
			if strings.HasSuffix(full, stop[:l]) && l > withhold {
				withhold = l
			}
		}
	}
	emitEnd := len(full) - withhold
	if emitEnd < s.emittedLen {
		emitEnd = s.emittedLen
	}
	emit = full[s.emittedLen:emitEnd]
	s.emittedLen = emitEnd
	return emit, false
}

// Flush returns any text still withheld at stream end (the worker
// finished without ever matching a stop string).
func (s *StopSplicer) Flush() string {
	full := s.accumulated.String()
	if s.emittedLen >= len(full) {
		return ""
	}
	emit := full[s.emittedLen:]
	s.emittedLen = len(full)
	return emit
}
