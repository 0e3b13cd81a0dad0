package diff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyPositionalOps(t *testing.T) {
	items := []string{"a", "b", "c"}

	out, err := Apply(items, Diff[string]{Op: OpInsert, Index: 1, Value: "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "x", "b", "c"}, out)

	out, err = Apply(out, Diff[string]{Op: OpSet, Index: 0, Value: "y"})
	require.NoError(t, err)
	require.Equal(t, []string{"y", "x", "b", "c"}, out)

	out, err = Apply(out, Diff[string]{Op: OpRemove, Index: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"y", "x", "c"}, out)

	out, err = Apply(out, Diff[string]{Op: OpTruncate, Index: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"y"}, out)

	// The original sequence is untouched.
	require.Equal(t, []string{"a", "b", "c"}, items)
}

func TestApplyEndOps(t *testing.T) {
	out, err := Apply(nil, Diff[int]{Op: OpPushBack, Value: 1})
	require.NoError(t, err)
	out, err = Apply(out, Diff[int]{Op: OpPushFront, Value: 0})
	require.NoError(t, err)
	out, err = Apply(out, Diff[int]{Op: OpAppend, Values: []int{2, 3}})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, out)

	out, err = Apply(out, Diff[int]{Op: OpPopFront})
	require.NoError(t, err)
	out, err = Apply(out, Diff[int]{Op: OpPopBack})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, out)

	out, err = Apply(out, Diff[int]{Op: OpReset, Values: []int{9}})
	require.NoError(t, err)
	require.Equal(t, []int{9}, out)

	out, err = Apply(out, Diff[int]{Op: OpClear})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestApplyOutOfRange(t *testing.T) {
	cases := []Diff[int]{
		{Op: OpInsert, Index: 3, Value: 1},
		{Op: OpSet, Index: 2, Value: 1},
		{Op: OpRemove, Index: -1},
		{Op: OpTruncate, Index: 5},
	}
	for _, d := range cases {
		_, err := Apply([]int{1, 2}, d)
		require.ErrorIs(t, err, ErrIndexOutOfRange, "op %s", d.Op)
	}

	_, err := Apply(nil, Diff[int]{Op: OpPopFront})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = Apply(nil, Diff[int]{Op: OpPopBack})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestApplyAllOrderAndAtomicity(t *testing.T) {
	initial := []string{"a"}

	b1 := []Diff[string]{
		{Op: OpPushBack, Value: "b"},
		{Op: OpInsert, Index: 1, Value: "m"},
	}
	b2 := []Diff[string]{
		{Op: OpRemove, Index: 0},
		{Op: OpSet, Index: 0, Value: "M"},
	}

	after1, err := ApplyAll(initial, b1)
	require.NoError(t, err)
	after2, err := ApplyAll(after1, b2)
	require.NoError(t, err)
	require.Equal(t, []string{"M", "b"}, after2)

	// A bad op anywhere in a batch yields no partial result.
	_, err = ApplyAll(after2, []Diff[string]{
		{Op: OpPushBack, Value: "c"},
		{Op: OpRemove, Index: 10},
	})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	require.Equal(t, []string{"M", "b"}, after2)
}
