// ABOUTME: Tests for the replay buffer eviction policy.
// ABOUTME: Checks capacity bounds and that context lines are never orphaned.

package reporter

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertWellFormed checks the buffer's structural invariants.
func assertWellFormed(t *testing.T, b *ReplayBuffer) {
	t.Helper()
	require.LessOrEqual(t, b.Len(), b.Cap())
	if b.Len() == 0 {
		return
	}
	require.True(t, b.entries[0].context, "first entry must declare a context: %v", b.Lines())
	for i, e := range b.entries {
		if !e.context {
			continue
		}
		require.Less(t, i+1, len(b.entries), "trailing context line: %v", b.Lines())
		require.False(t, b.entries[i+1].context, "context line without dependent: %v", b.Lines())
	}
}

func TestReplayBuffer_DeclaresContext(t *testing.T) {
	b := NewReplayBuffer(10)
	b.Append("X", "100,1")
	b.Append("X", "100,2")
	b.Append("Y", "200,1")
	b.Append("X", "100,3")

	assert.Equal(t, []string{
		"15,X", "100,1", "100,2",
		"15,Y", "200,1",
		"15,X", "100,3",
	}, b.Lines())
	assertWellFormed(t, b)
}

func TestReplayBuffer_EvictsOldestKeepsContext(t *testing.T) {
	b := NewReplayBuffer(4)
	b.Append("X", "A")
	b.Append("X", "B")
	b.Append("X", "C")
	require.Equal(t, []string{"15,X", "A", "B", "C"}, b.Lines())

	// A goes, the context line stays because B and C still depend on it
	b.Append("X", "D")
	assert.Equal(t, []string{"15,X", "B", "C", "D"}, b.Lines())
	assertWellFormed(t, b)
}

func TestReplayBuffer_EvictsContextWithLastDependent(t *testing.T) {
	b := NewReplayBuffer(4)
	b.Append("X", "A")
	b.Append("Y", "B")
	require.Equal(t, []string{"15,X", "A", "15,Y", "B"}, b.Lines())

	b.Append("Y", "C")
	assert.Equal(t, []string{"15,Y", "B", "C"}, b.Lines())
	assertWellFormed(t, b)
}

func TestReplayBuffer_ContextSwitchAtCapacity(t *testing.T) {
	b := NewReplayBuffer(3)
	b.Append("X", "A")
	b.Append("X", "B")
	require.Equal(t, []string{"15,X", "A", "B"}, b.Lines())

	b.Append("Y", "C")
	assert.Equal(t, []string{"15,Y", "C"}, b.Lines())
	assertWellFormed(t, b)
}

func TestReplayBuffer_MinimumCapacityRedeclaresContext(t *testing.T) {
	b := NewReplayBuffer(1)
	assert.Equal(t, 2, b.Cap())

	b.Append("X", "A")
	assert.Equal(t, []string{"15,X", "A"}, b.Lines())

	// Evicting A empties the buffer; B still needs its context
	b.Append("X", "B")
	assert.Equal(t, []string{"15,X", "B"}, b.Lines())

	b.Append("Y", "C")
	assert.Equal(t, []string{"15,Y", "C"}, b.Lines())
	assertWellFormed(t, b)
}

func TestReplayBuffer_Clear(t *testing.T) {
	b := NewReplayBuffer(5)
	b.Append("X", "A")
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Lines())

	b.Append("X", "B")
	assert.Equal(t, []string{"15,X", "B"}, b.Lines())
}

func TestReplayBuffer_RandomAppendsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	contexts := []string{"X", "Y", "Z"}

	for _, capacity := range []int{2, 3, 4, 7, 16} {
		t.Run(fmt.Sprintf("cap=%d", capacity), func(t *testing.T) {
			b := NewReplayBuffer(capacity)
			var lastLine string
			for i := 0; i < 500; i++ {
				ctx := contexts[rng.Intn(len(contexts))]
				lastLine = fmt.Sprintf("%s-%d", ctx, i)
				b.Append(ctx, lastLine)
				assertWellFormed(t, b)

				lines := b.Lines()
				assert.Equal(t, lastLine, lines[len(lines)-1], "newest line must be retained")
			}
		})
	}
}
