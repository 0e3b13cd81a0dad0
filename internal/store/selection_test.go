package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectionWrapsAround(t *testing.T) {
	var s Selection

	// First move selects index 0.
	i, changed := s.Next(3)
	require.True(t, changed)
	require.Equal(t, 0, i)

	// N moves from index 0 over a list of length N return to the start.
	indices := []int{i}
	for range 3 {
		i, _ = s.Next(3)
		indices = append(indices, i)
	}
	require.Equal(t, []int{0, 1, 2, 0}, indices)

	cur, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, 0, cur)
}

func TestSelectionPreviousWrapsToEnd(t *testing.T) {
	var s Selection

	i, changed := s.Previous(3)
	require.True(t, changed)
	require.Equal(t, 0, i)

	i, changed = s.Previous(3)
	require.True(t, changed)
	require.Equal(t, 2, i)
}

func TestSelectionEmptyListIsNoop(t *testing.T) {
	var s Selection

	_, changed := s.Next(0)
	require.False(t, changed)
	_, changed = s.Previous(0)
	require.False(t, changed)
	_, ok := s.Current()
	require.False(t, ok)

	// An existing selection is cleared when the list empties.
	s.Next(2)
	_, changed = s.Next(0)
	require.False(t, changed)
	_, ok = s.Current()
	require.False(t, ok)
}

func TestSelectionSingleElementReportsNoChange(t *testing.T) {
	var s Selection

	_, changed := s.Next(1)
	require.True(t, changed)

	_, changed = s.Next(1)
	require.False(t, changed)
	_, changed = s.Previous(1)
	require.False(t, changed)

	cur, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, 0, cur)
}
