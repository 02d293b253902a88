package rewards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func received(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	a, unsubA := s.Subscribe()
	b, unsubB := s.Subscribe()
	require.Equal(t, 2, s.Subscribers())

	s.Fire()
	s.Fire()
	require.True(t, received(a))
	require.False(t, received(a), "fires are coalesced")
	require.True(t, received(b))

	unsubA()
	unsubA()
	require.Equal(t, 1, s.Subscribers())

	s.Fire()
	require.False(t, received(a))
	require.True(t, received(b))

	unsubB()
	require.Zero(t, s.Subscribers())
	s.Fire()
}
