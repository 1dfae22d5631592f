package memory

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportflow/core"
)

func TestConversationMemory_AppendAndContext(t *testing.T) {
	m := New()
	m.Append("s1", core.NewTurn("user", "hello"))
	m.Append("s1", core.NewTurn("assistant", "hi there"))

	turns := m.Context("s1", 10)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "hi there", turns[1].Content)
}

func TestConversationMemory_ContextLimit(t *testing.T) {
	m := New()
	for i := 0; i < 6; i++ {
		m.Append("s1", core.NewTurn("user", fmt.Sprintf("msg %d", i)))
	}

	turns := m.Context("s1", 2)
	require.Len(t, turns, 2)
	assert.Equal(t, "msg 4", turns[0].Content)
	assert.Equal(t, "msg 5", turns[1].Content)
}

func TestConversationMemory_UnknownSession(t *testing.T) {
	m := New()
	assert.Nil(t, m.Context("never-seen", 5))
}

func TestConversationMemory_SessionIsolation(t *testing.T) {
	m := New()
	m.Append("s1", core.NewTurn("user", "order question"))
	m.Append("s2", core.NewTurn("user", "refund question"))

	s1 := m.Context("s1", 10)
	require.Len(t, s1, 1)
	assert.Equal(t, "order question", s1[0].Content)

	s2 := m.Context("s2", 10)
	require.Len(t, s2, 1)
	assert.Equal(t, "refund question", s2[0].Content)
}

func TestConversationMemory_TrimCeiling(t *testing.T) {
	m := New(func(o *Options) {
		o.MaxTurns = 4
		o.CompactAfter = 0
	})
	for i := 0; i < 10; i++ {
		m.Append("s1", core.NewTurn("user", fmt.Sprintf("msg %d", i)))
	}

	turns := m.Context("s1", 0)
	require.Len(t, turns, 4)
	assert.Equal(t, "msg 6", turns[0].Content)
	assert.Equal(t, "msg 9", turns[3].Content)
}

func TestConversationMemory_Compaction(t *testing.T) {
	m := New(func(o *Options) {
		o.MaxTurns = 20
		o.CompactAfter = 6
	})
	for i := 0; i < 8; i++ {
		m.Append("s1", core.NewTurn("user", fmt.Sprintf("msg %d", i)))
	}

	turns := m.Context("s1", 0)
	require.NotEmpty(t, turns)
	assert.Equal(t, "summary", turns[0].Role)
	assert.Contains(t, turns[0].Content, "Earlier conversation")
	assert.Contains(t, turns[0].Content, "msg 0")
	// Recent turns survive verbatim.
	assert.Equal(t, "msg 7", turns[len(turns)-1].Content)
	assert.Less(t, len(turns), 8)
}

func TestConversationMemory_EnsureIdempotent(t *testing.T) {
	m := New()
	s1 := m.Ensure("s1", "u1")
	s2 := m.Ensure("s1", "other")
	assert.Same(t, s1, s2)
	assert.Equal(t, "u1", s1.UserID)
	assert.Equal(t, 1, m.SessionCount())
}

func TestSummarize_UsesFirstLineOnly(t *testing.T) {
	turns := []core.Turn{
		core.NewTurn("user", "first line\nsecond line"),
	}
	s := summarize(turns)
	assert.Contains(t, s, "first line")
	assert.NotContains(t, s, "second line")
}

func TestClip(t *testing.T) {
	t.Run("short strings pass through", func(t *testing.T) {
		assert.Equal(t, "hello", clip("hello", 10))
	})

	t.Run("long strings get an ellipsis", func(t *testing.T) {
		got := clip(strings.Repeat("a", 50), 10)
		assert.Equal(t, strings.Repeat("a", 10)+"...", got)
	})

	t.Run("never cuts a rune in half", func(t *testing.T) {
		got := clip(strings.Repeat("ü", 40), 15)
		assert.True(t, utf8.ValidString(got))
		assert.True(t, strings.HasSuffix(got, "..."))
		assert.Equal(t, strings.Repeat("ü", 7)+"...", got)
	})
}
