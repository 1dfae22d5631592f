package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecution_StepOrdering(t *testing.T) {
	e := NewExecution("support", "s1")
	assert.Equal(t, 0, e.AddReasonStep("thinking"))
	assert.Equal(t, 1, e.AddToolStep("lookupOrder", map[string]any{"order_id": "ORD-1"}, "result"))
	assert.Equal(t, 2, e.AddReasonStep("answering"))

	require.Equal(t, 3, e.StepCount())
	assert.Equal(t, ActionReason, e.Steps[0].Action)
	assert.Equal(t, ActionUseTool, e.Steps[1].Action)
	assert.Equal(t, "lookupOrder", e.Steps[1].Tool)
	for i, s := range e.Steps {
		assert.Equal(t, i, s.Index)
	}
}

func TestExecution_LastReasoning(t *testing.T) {
	e := NewExecution("support", "s1")
	assert.Empty(t, e.LastReasoning())

	e.AddReasonStep("first thought")
	e.AddToolStep("lookupOrder", nil, "ignored")
	e.AddReasonStep("latest thought")
	assert.Equal(t, "latest thought", e.LastReasoning())
}

func TestExecution_Seal(t *testing.T) {
	e := NewExecution("support", "s1")
	e.Seal(StatusCompleted, "all done")

	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, "all done", e.Response)
	assert.GreaterOrEqual(t, e.Duration, time.Duration(0))
	assert.NotEmpty(t, e.ID)
}

func TestSession_RecentAndCompact(t *testing.T) {
	s := NewSession("s1", "u1")
	for _, msg := range []string{"a", "b", "c", "d"} {
		s.AddTurn(NewTurn("user", msg))
	}

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Content)

	require.True(t, s.Compact(2, "condensed"))
	all := s.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, "summary", all[0].Role)
	assert.Equal(t, "condensed", all[0].Content)
	assert.Equal(t, "c", all[1].Content)

	assert.False(t, s.Compact(10, "too many"))
}

func TestSession_TrimOldest(t *testing.T) {
	s := NewSession("s1", "")
	for _, msg := range []string{"a", "b", "c", "d"} {
		s.AddTurn(NewTurn("user", msg))
	}

	assert.Equal(t, 2, s.TrimOldest(2))
	all := s.Recent(0)
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].Content)

	assert.Equal(t, 0, s.TrimOldest(10))
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
