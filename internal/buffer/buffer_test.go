package buffer

import (
	"testing"

	"gis-map-server/internal/resp"

	"github.com/stretchr/testify/require"
)

func TestPushReadyAndPopByID(t *testing.T) {
	b := New(1 << 20)
	status, evicted := b.Push(1, []byte("hello"), "image/png")
	require.Equal(t, resp.StatusReady, status)
	require.Empty(t, evicted)

	payload, format, ok := b.PopByID(1)
	require.True(t, ok)
	require.Equal(t, "hello", string(payload))
	require.Equal(t, "image/png", format)
}

func TestPushDuplicateIDIsInvalidParam(t *testing.T) {
	b := New(1 << 20)
	b.Push(1, []byte("a"), "image/png")
	status, evicted := b.Push(1, []byte("b"), "image/png")
	require.Equal(t, resp.StatusInvalidParam, status)
	require.Empty(t, evicted)
}

func TestPushOversizedPayloadIsNoMemAndEvictsNothing(t *testing.T) {
	b := New(10)
	status, evicted := b.Push(1, make([]byte, 11), "image/png")
	require.Equal(t, resp.StatusNoMem, status)
	require.Empty(t, evicted)
	require.Equal(t, int64(0), b.CurrentSize())
}

func TestPushExactBudgetSucceeds(t *testing.T) {
	b := New(10)
	status, evicted := b.Push(1, make([]byte, 10), "image/png")
	require.Equal(t, resp.StatusReady, status)
	require.Empty(t, evicted)
	require.Equal(t, int64(10), b.CurrentSize())
}

// S3 from spec.md §8: buffer=1000 bytes; push id=1 of 700B, then id=2 of
// 500B evicts id=1.
func TestEvictionFIFOUnderPressure(t *testing.T) {
	b := New(1000)
	status, evicted := b.Push(1, make([]byte, 700), "image/png")
	require.Equal(t, resp.StatusReady, status)
	require.Empty(t, evicted)

	status, evicted = b.Push(2, make([]byte, 500), "image/png")
	require.Equal(t, resp.StatusReady, status)
	require.Equal(t, []int64{1}, evicted)
	require.False(t, b.Has(1))
	require.True(t, b.Has(2))
	require.Equal(t, int64(500), b.CurrentSize())
}

func TestEvictionCanClearEverything(t *testing.T) {
	b := New(1000)
	b.Push(1, make([]byte, 400), "a")
	b.Push(2, make([]byte, 400), "b")
	status, evicted := b.Push(3, make([]byte, 900), "c")
	require.Equal(t, resp.StatusReady, status)
	require.ElementsMatch(t, []int64{1, 2}, evicted)
	require.Equal(t, int64(900), b.CurrentSize())
}

func TestPopByIDDoesNotRemoveOrDecrementSize(t *testing.T) {
	b := New(1000)
	b.Push(1, make([]byte, 100), "a")
	sizeBefore := b.CurrentSize()
	_, _, ok := b.PopByID(1)
	require.True(t, ok)
	_, _, ok = b.PopByID(1)
	require.True(t, ok, "artifact must remain readable until evicted")
	require.Equal(t, sizeBefore, b.CurrentSize())
}
