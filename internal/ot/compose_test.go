package ot_test

import (
	"testing"
	"time"

	"github.com/serroba/online-docs/internal/ot"
	"github.com/stretchr/testify/require"
)

func TestCompose_ContiguousInserts(t *testing.T) {
	t.Parallel()

	op1 := ot.NewInsert("he", 0, "alice")
	op2 := ot.NewInsert("llo", 2, "alice")
	op2.Timestamp = time.UnixMilli(2000)

	composed := ot.Compose([]ot.Operation{op1, op2})
	require.Len(t, composed, 1)
	require.Equal(t, "hello", composed[0].Content)
	require.Equal(t, op1.ID, composed[0].ID)
	require.Equal(t, op2.Timestamp, composed[0].Timestamp)

	sequential, err := ot.ApplyAll("!", op1, op2)
	require.NoError(t, err)

	merged, err := ot.Apply("!", composed[0])
	require.NoError(t, err)
	require.Equal(t, sequential, merged)
}

func TestCompose_ForwardAndBackspaceDeletes(t *testing.T) {
	t.Parallel()

	base := "abcdefgh"

	forward := []ot.Operation{ot.NewDelete(2, 1, "alice"), ot.NewDelete(2, 2, "alice")}
	backspace := []ot.Operation{ot.NewDelete(5, 1, "alice"), ot.NewDelete(3, 2, "alice")}

	for _, ops := range [][]ot.Operation{forward, backspace} {
		composed := ot.Compose(ops)
		require.Len(t, composed, 1)

		want, err := ot.ApplyAll(base, ops...)
		require.NoError(t, err)

		got, err := ot.Apply(base, composed[0])
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCompose_KeepsDifferentAuthorsApart(t *testing.T) {
	t.Parallel()

	ops := []ot.Operation{
		ot.NewInsert("a", 0, "alice"),
		ot.NewInsert("b", 1, "bob"),
		ot.NewInsert("c", 2, "bob"),
		ot.NewDelete(0, 1, "bob"),
	}

	composed := ot.Compose(ops)
	require.Len(t, composed, 3)
	require.Equal(t, "bc", composed[1].Content)

	want, err := ot.ApplyAll("", ops...)
	require.NoError(t, err)

	got, err := ot.ApplyAll("", composed...)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCompose_NonContiguousStaysSeparate(t *testing.T) {
	t.Parallel()

	ops := []ot.Operation{
		ot.NewInsert("a", 0, "alice"),
		ot.NewInsert("b", 5, "alice"),
	}

	require.Len(t, ot.Compose(ops), 2)
	require.Nil(t, ot.Compose(nil))
}
