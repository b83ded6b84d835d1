package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanBlocksHardSecret(t *testing.T) {
	content := "token: " + "ghp_" + strings.Repeat("A", 36)
	result := Scan(content, DefaultOptions())
	assert.Equal(t, ActionBlocked, result.Action)
}

func TestScanMasksEmail(t *testing.T) {
	result := Scan("contact me at alice@example.com please", DefaultOptions())
	assert.Equal(t, ActionMasked, result.Action)
	assert.Contains(t, result.Content, "[EMAIL_REDACTED]")
	assert.NotContains(t, result.Content, "alice@example.com")
}

func TestScanPassesCleanContent(t *testing.T) {
	result := Scan("this function returns a sorted slice", DefaultOptions())
	assert.Equal(t, ActionPass, result.Action)
	assert.Empty(t, result.Findings)
}

func TestScanDisabledLayersSkipped(t *testing.T) {
	content := "token: " + "ghp_" + strings.Repeat("A", 36)
	result := Scan(content, Options{})
	assert.Equal(t, ActionPass, result.Action)
	assert.Equal(t, 0, result.LayersExecuted)
}

func TestScanLatencyBudget(t *testing.T) {
	result := Scan(strings.Repeat("lorem ipsum dolor sit amet ", 200), Options{L1Enabled: true, L2Enabled: true})
	assert.Less(t, result.ScanDurationMS, 10.0)
}
