package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunQuantizeRejectsUnknownCollection(t *testing.T) {
	quantizeQuantile = 0.99
	err := runQuantize(quantizeCmd, []string{"not-a-collection"})
	require.Error(t, err)
	var uerr usageError
	require.ErrorAs(t, err, &uerr)
}

func TestRunQuantizeRejectsOutOfRangeQuantile(t *testing.T) {
	quantizeQuantile = 1.5
	err := runQuantize(quantizeCmd, []string{"code-patterns"})
	require.Error(t, err)
	var uerr usageError
	require.ErrorAs(t, err, &uerr)

	quantizeQuantile = 0
	err = runQuantize(quantizeCmd, []string{"code-patterns"})
	require.Error(t, err)
	require.ErrorAs(t, err, &uerr)
}

func TestRunQuantizeDryRunSkipsComponents(t *testing.T) {
	quantizeQuantile = 0.99
	quantizeAlwaysRAM = false
	dryRun = true
	defer func() { dryRun = false }()

	err := runQuantize(quantizeCmd, []string{"conventions"})
	require.NoError(t, err)
}
