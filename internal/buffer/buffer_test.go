package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetReleaseBalance(t *testing.T) {
	p := NewPool(64)
	b := p.Get(10)
	require.EqualValues(t, 1, b.RefCount())
	b.Retain()
	require.EqualValues(t, 2, b.RefCount())
	b.Release()
	require.EqualValues(t, 1, b.RefCount())
	b.Release()
	require.EqualValues(t, 0, b.RefCount())
}

func TestDoubleReleasePanics(t *testing.T) {
	p := NewPool(64)
	b := p.Get(10)
	b.Release()
	require.Panics(t, func() { b.Release() })
}

func TestBytesReflectsFilledLength(t *testing.T) {
	p := NewPool(1500)
	b := p.Get(42)
	require.Len(t, b.Bytes(), 42)
}

func TestNarrowShrinksWindowInPlace(t *testing.T) {
	p := NewPool(64)
	b := p.Get(20)
	copy(b.Bytes(), []byte("0123456789abcdefghij"))

	b.Narrow(5, 10)
	require.Equal(t, []byte("56789abcde"), b.Bytes())
	require.EqualValues(t, 1, b.RefCount())
}

func TestNarrowOutOfBoundsPanics(t *testing.T) {
	p := NewPool(64)
	b := p.Get(10)
	require.Panics(t, func() { b.Narrow(5, 10) })
}
