package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompletionCmdGeneratesBashScript(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, completionCmd.Root().GenBashCompletionV2(&buf, true))
	require.Contains(t, buf.String(), "memctl")
}
