package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONStripsSurroundingProse(t *testing.T) {
	raw := "Sure, here you go:\n{\"type\":\"decision\",\"confidence\":0.9,\"reasoning\":\"clear\"}\nHope that helps."
	assert.Equal(t, `{"type":"decision","confidence":0.9,"reasoning":"clear"}`, extractJSON(raw))
}

func TestExtractJSONPassesThroughWhenNoBraces(t *testing.T) {
	raw := "no json here"
	assert.Equal(t, raw, extractJSON(raw))
}

func TestBuildPromptIncludesCurrentTypeAndCollection(t *testing.T) {
	prompt := buildPrompt("fixed the race condition", "code-patterns", "error_fix")
	assert.Contains(t, prompt, "code-patterns")
	assert.Contains(t, prompt, "error_fix")
	assert.Contains(t, prompt, "fixed the race condition")
}
