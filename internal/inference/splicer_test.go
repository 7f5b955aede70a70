package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopSplicer_EmitsPlainTextUntouched(t *testing.T) {
	s := NewStopSplicer([]string{"\n\nUser:"})
	emit, done := s.Feed("hello ")
	assert.Equal(t, "hello ", emit)
	assert.False(t, done)

	emit, done = s.Feed("world")
	assert.Equal(t, "world", emit)
	assert.False(t, done)
}

func TestStopSplicer_FindsStopWithinSingleChunk(t *testing.T) {
	s := NewStopSplicer([]string{"STOP"})
	emit, done := s.Feed("hello STOP world")
	assert.Equal(t, "hello ", emit)
	assert.True(t, done)
}

func TestStopSplicer_WithholdsPartialStopAcrossChunks(t *testing.T) {
	s := NewStopSplicer([]string{"STOP"})

	emit, done := s.Feed("hello ST")
	assert.Equal(t, "hello ", emit, "the partial \"ST\" prefix of STOP must be withheld")
	assert.False(t, done)

	emit, done = s.Feed("OP world")
	assert.Equal(t, "", emit, "the full stop string appears with nothing new before it")
	assert.True(t, done)
}

func TestStopSplicer_WithheldTextEmittedIfNeverCompletes(t *testing.T) {
	s := NewStopSplicer([]string{"STOP"})

	emit, done := s.Feed("hello ST")
	assert.Equal(t, "hello ", emit)
	assert.False(t, done)

	emit, done = s.Feed("RAY") // "ST" + "RAY" = "STRAY", never matches "STOP"
	assert.Equal(t, "STRAY", emit)
	assert.False(t, done)
}

func TestStopSplicer_FlushReturnsUnemittedTail(t *testing.T) {
	s := NewStopSplicer([]string{"STOP"})
	s.Feed("hello ST")
	assert.Equal(t, "ST", s.Flush())
	assert.Equal(t, "", s.Flush(), "a second flush has nothing left")
}

func TestStopSplicer_MultipleStopsPicksEarliestMatch(t *testing.T) {
	s := NewStopSplicer([]string{"BBB", "AA"})
	emit, done := s.Feed("xxAAxxBBB")
	assert.Equal(t, "xx", emit)
	assert.True(t, done)
}

func TestStopSplicer_EmptyStopsNeverMatch(t *testing.T) {
	s := NewStopSplicer([]string{"", ""})
	emit, done := s.Feed("anything at all")
	assert.Equal(t, "anything at all", emit)
	assert.False(t, done)
}
