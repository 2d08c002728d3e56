package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultIsNoOpOnSecondCall(t *testing.T) {
	s := NewStore()
	s.RegisterDefault("effect.order.0", "")
	s.Set("effect.order.0", "vorbis")

	s.RegisterDefault("effect.order.0", "ignored")

	v, ok := s.Lookup("effect.order.0")
	require.True(t, ok)
	require.Equal(t, "vorbis", v)
}

func TestLookupOnUnregisteredKeyReturnsFalse(t *testing.T) {
	s := NewStore()
	_, ok := s.Lookup("nope")
	require.False(t, ok)
}

func TestSetRegistersKeyImplicitly(t *testing.T) {
	s := NewStore()
	s.Set("vorbis.enabled", "1")

	v, ok := s.Lookup("vorbis.enabled")
	require.True(t, ok)
	require.Equal(t, "1", v)

	// A later RegisterDefault must not clobber the explicit Set.
	s.RegisterDefault("vorbis.enabled", "0")
	v, ok = s.Lookup("vorbis.enabled")
	require.True(t, ok)
	require.Equal(t, "1", v)
}
