// Package tester holds terse generic assertions shared by package tests.
package tester

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Eq fails the test immediately unless got equals want (deep equality).
func Eq[T any](t *testing.T, got, want T, msgAndArgs ...any) {
	t.Helper()
	require.Equal(t, want, got, msgAndArgs...)
}

func True(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	require.True(t, cond, msgAndArgs...)
}

func False(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	require.False(t, cond, msgAndArgs...)
}

func NoErr(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

// Contains fails unless s contains every substring in parts.
func Contains(t *testing.T, s string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		require.Contains(t, s, p)
	}
}
