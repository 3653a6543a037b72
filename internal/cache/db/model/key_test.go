package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewKey_Deterministic hashes the same string to the same identity.
func TestNewKey_Deterministic(t *testing.T) {
	a := NewKey("user:42")
	b := NewKey("user:42")

	require.Equal(t, a.Value(), b.Value())
	require.True(t, a.IsTheSame(b))
}

// TestNewKey_DifferentKeysDiffer distinguishes different strings.
func TestNewKey_DifferentKeysDiffer(t *testing.T) {
	a := NewKey("user:42")
	b := NewKey("user:43")

	require.False(t, a.IsTheSame(b))
}

// TestKey_IsTheSame_CollisionDetected treats equal 64-bit sums with different
// 128-bit digests as different keys.
func TestKey_IsTheSame_CollisionDetected(t *testing.T) {
	a := NewKey("payload")
	forged := &Key{v: a.Value(), hi: a.hi + 1, lo: a.lo}

	require.Equal(t, a.Value(), forged.Value())
	require.False(t, a.IsTheSame(forged))
}

// TestEntry_Key_NilSafe returns nil for a nil entry.
func TestEntry_Key_NilSafe(t *testing.T) {
	var e *Entry
	require.Nil(t, e.Key())
}
