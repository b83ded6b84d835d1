// Package truncate implements the smart-truncation policies spec
// section 4.1 step 4 requires: never a hard content[:N] slice, always a
// documented marker, token counts computed with a fixed encoding
// (cl100k_base).
package truncate

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hiddenhistory/memctl/internal/types"
)

const (
	UserMessageTokenLimit   = 2000
	AgentResponseTokenLimit = 3000
	CollectionCeilingTokens = 8192

	sentenceMarker = " [...]"
	middleMarker   = "[... truncated middle ...]"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// CountTokens returns the cl100k_base token count for text. Falls back
// to a conservative 4-chars-per-token estimate if the encoder cannot be
// loaded, so a missing encoding table never breaks the write path.
func CountTokens(text string) int {
	e, err := encoding()
	if err != nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}

var sentenceBoundary = regexp.MustCompile(`[.!?]\s`)

// Apply runs the truncation policy selected by class, returning the
// possibly-shortened content and whether it was truncated.
func Apply(class types.TruncationClass, content string) (string, bool) {
	switch class {
	case types.TruncateSentenceUserMessage:
		return truncateAtSentence(content, UserMessageTokenLimit)
	case types.TruncateSentenceAgentResponse:
		return truncateAtSentence(content, AgentResponseTokenLimit)
	case types.TruncateErrorContext:
		return truncateStructuredError(content)
	case types.TruncateCeiling:
		return truncateAtSentence(content, CollectionCeilingTokens)
	case types.TruncateNone:
		return content, false
	default:
		return content, false
	}
}

// truncateAtSentence end-truncates at the nearest sentence boundary
// within the token budget, falling back to the last whitespace when the
// window holds no sentence boundary, and appends the documented marker.
// A window with no whitespace at all is cut at the budget.
func truncateAtSentence(content string, tokenLimit int) (string, bool) {
	if CountTokens(content) <= tokenLimit {
		return content, false
	}

	e, err := encoding()
	var approxChars int
	if err == nil {
		ids := e.Encode(content, nil, nil)
		if len(ids) > tokenLimit {
			// Decode only the prefix to find an approximate character
			// budget, then search backward for a sentence boundary.
			approxChars = len(e.Decode(ids[:tokenLimit]))
		}
	}
	if approxChars == 0 || approxChars > len(content) {
		approxChars = tokenLimit * 4
		if approxChars > len(content) {
			approxChars = len(content)
		}
	}

	window := content[:approxChars]
	locs := sentenceBoundary.FindAllStringIndex(window, -1)
	cut := approxChars
	if len(locs) > 0 {
		cut = locs[len(locs)-1][1]
	} else if sp := strings.LastIndexAny(window, " \n\t"); sp > 0 {
		cut = sp
	}
	return strings.TrimRight(content[:cut], " \n\t") + sentenceMarker, true
}

// truncateStructuredError applies head+tail truncation to the whole
// content string: it keeps the first 2000 and the last 1000 bytes,
// joined by the middle marker. It does not locate the command or the
// error message inside content, so an error line that falls in the
// dropped middle is not kept.
func truncateStructuredError(content string) (string, bool) {
	const headChars = 2000
	const tailChars = 1000

	if len(content) <= headChars+tailChars+len(middleMarker) {
		return content, false
	}

	head := content[:headChars]
	tail := content[len(content)-tailChars:]
	return head + "\n" + middleMarker + "\n" + tail, true
}
