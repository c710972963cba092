package filesystem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenListTeam/fdstream/internal/sys"
	"github.com/OpenListTeam/fdstream/manager/fd"
)

func newStream(t *testing.T, name string) *fd.Stream {
	t.Helper()
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close(w) })
	s, err := fd.Adopt(r, fd.WithName(name))
	require.NoError(t, err)
	return s
}

func TestManagerAddGetRemove(t *testing.T) {
	m := NewManager()
	s := newStream(t, "stdin")

	h := m.Add(s)
	require.EqualValues(t, 1, h)

	got, ok := m.Get(h)
	require.True(t, ok)
	require.Same(t, s, got)
	got, ok = m.Lookup("stdin")
	require.True(t, ok)
	require.Same(t, s, got)

	require.NoError(t, m.Remove(h))
	require.True(t, s.Closed())
	_, ok = m.Get(h)
	require.False(t, ok)
	_, ok = m.Lookup("stdin")
	require.False(t, ok)
	require.NoError(t, m.Remove(h))
}

func TestManagerShadowedName(t *testing.T) {
	m := NewManager()
	first := newStream(t, "log")
	second := newStream(t, "log")
	h1 := m.Add(first)
	m.Add(second)

	got, ok := m.Lookup("log")
	require.True(t, ok)
	require.Same(t, second, got)

	require.NoError(t, m.Remove(h1))
	got, ok = m.Lookup("log")
	require.True(t, ok)
	require.Same(t, second, got)
}

func TestManagerCloseClosesAll(t *testing.T) {
	m := NewManager()
	a := newStream(t, "a")
	b := newStream(t, "b")
	m.Add(a)
	m.Add(b)

	count := 0
	m.Range(func(uint32, *fd.Stream) bool {
		count++
		return true
	})
	require.Equal(t, 2, count)

	require.NoError(t, m.Close())
	require.True(t, a.Closed())
	require.True(t, b.Closed())

	count = 0
	m.Range(func(uint32, *fd.Stream) bool {
		count++
		return true
	})
	require.Zero(t, count)
}
