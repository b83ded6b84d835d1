package truncate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hiddenhistory/memctl/internal/types"
)

func TestApplyNoneLeavesContentUntouched(t *testing.T) {
	out, truncated := Apply(types.TruncateNone, "anything at all")
	assert.False(t, truncated)
	assert.Equal(t, "anything at all", out)
}

func TestApplyUnderBudgetReturnsOriginal(t *testing.T) {
	out, truncated := Apply(types.TruncateSentenceUserMessage, "short message.")
	assert.False(t, truncated)
	assert.Equal(t, "short message.", out)
}

func TestApplySentenceTruncationEndsWithMarker(t *testing.T) {
	long := strings.Repeat("This is a sentence about the system. ", 600)
	out, truncated := Apply(types.TruncateSentenceUserMessage, long)
	assert.True(t, truncated)
	assert.True(t, strings.HasSuffix(out, " [...]"))
	assert.LessOrEqual(t, len(out), len(long))
}

func TestApplyStructuredErrorMiddleMarker(t *testing.T) {
	big := strings.Repeat("x", 5000)
	out, truncated := Apply(types.TruncateErrorContext, big)
	assert.True(t, truncated)
	assert.Contains(t, out, "[... truncated middle ...]")
}

func TestCountTokensNeverPanics(t *testing.T) {
	n := CountTokens("hello world")
	assert.Greater(t, n, 0)
}
