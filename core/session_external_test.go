package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportflow/internal/testutil"
)

func TestSession_RecentWindow(t *testing.T) {
	sess := testutil.NewSessionBuilder("sess-1").
		User("u-1").
		Exchange("where is my order?", "It shipped yesterday.").
		Exchange("when will it arrive?", "In two business days.").
		Build()

	require.Equal(t, 4, sess.TurnCount())

	recent := sess.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "when will it arrive?", recent[0].Content)
	assert.Equal(t, "In two business days.", recent[1].Content)

	assert.Len(t, sess.Recent(0), 4)
	assert.Len(t, sess.Recent(10), 4)
}

func TestSession_CompactKeepsRecentTail(t *testing.T) {
	sess := testutil.NewSessionBuilder("sess-1").
		Exchange("one", "two").
		Exchange("three", "four").
		Build()

	require.True(t, sess.Compact(2, "earlier: greeting exchange"))

	turns := sess.Recent(0)
	require.Len(t, turns, 3)
	assert.Equal(t, "summary", turns[0].Role)
	assert.Equal(t, "three", turns[1].Content)
}
