package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCmdRuns(t *testing.T) {
	out := captureStdout(t, func() {
		versionCmd.Run(versionCmd, nil)
	})
	require.Contains(t, out, "memctl version")
	require.Contains(t, out, version)
	require.Contains(t, out, "Go version")
}
