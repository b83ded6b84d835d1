package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUsageErrorUnwrapsAndMatchesType(t *testing.T) {
	err := newUsageError("collection must be one of %s, got %q", "a, b", "c")
	require.EqualError(t, err, `collection must be one of a, b, got "c"`)

	var uerr usageError
	require.True(t, errors.As(err, &uerr))

	wrapped := errors.New("boom")
	err = usageError{err: wrapped}
	require.Equal(t, wrapped, errors.Unwrap(err))
}
