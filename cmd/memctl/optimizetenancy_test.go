package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunOptimizeTenancyRejectsEmptyFields(t *testing.T) {
	optimizeTenancyFields = nil
	err := runOptimizeTenancy(optimizeTenancyCmd, nil)
	require.Error(t, err)
	var uerr usageError
	require.ErrorAs(t, err, &uerr)
}

func TestRunOptimizeTenancyDryRunSkipsComponents(t *testing.T) {
	optimizeTenancyFields = []string{"group_id"}
	dryRun = true
	defer func() { dryRun = false }()

	err := runOptimizeTenancy(optimizeTenancyCmd, nil)
	require.NoError(t, err)
}
