// Package security implements the three-layer PII/secret scanner from
// spec section 4.7. It carries forward the teacher's safety-package
// operating principles — fail open on internal error, cheapest check
// first, per-layer kill switches — even though no executable code in
// the example pack implements PII/secret scanning itself (see
// DESIGN.md for the stdlib justification on L3).
package security

import (
	"regexp"
	"time"
)

// Action is the scanner's verdict for one piece of content.
type Action string

const (
	ActionPass    Action = "pass"
	ActionMasked  Action = "masked"
	ActionBlocked Action = "blocked"
)

// Finding describes one match, for the scanner's structured output.
type Finding struct {
	Type string `json:"type"`
	Span [2]int `json:"span"`
}

// Result is the scanner's full output contract.
type Result struct {
	Action        Action    `json:"action"`
	Content       string    `json:"content"`
	Findings      []Finding `json:"findings"`
	LayersExecuted int      `json:"layers_executed"`
	ScanDurationMS float64  `json:"scan_duration_ms"`
}

// Options gates each layer independently, matching spec section 4.7's
// "each gated by configuration."
type Options struct {
	L1Enabled bool
	L2Enabled bool
	L3Enabled bool
}

// DefaultOptions enables all three layers, matching storage's default
// policy before config-driven overrides are applied.
func DefaultOptions() Options {
	return Options{L1Enabled: true, L2Enabled: true, L3Enabled: true}
}

// hard secrets: source-hosting PATs and cloud keys. Matched first
// because it's the cheapest class of regex and the one whose failure
// mode (leaking a live credential) is worst.
var hardSecretPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"github_pat", regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`)},
	{"github_fine_grained_pat", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}\b`)},
	{"aws_access_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"slack_token", regexp.MustCompile(`\bxox[baprs]-[0-9A-Za-z-]{10,}\b`)},
	{"generic_private_key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
}

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	ipv4Pattern  = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)
)

// exampleContextPattern recognizes content that explicitly disclaims
// itself as a sample, the L2 contextual-disambiguation check that
// reduces false positives on words that merely look like secrets.
var exampleContextPattern = regexp.MustCompile(`(?i)\b(example|sample|placeholder|fake|dummy|redacted)\b`)

// Scan runs L1, optionally L2 and L3, against content. It must never
// panic or block on untrusted input; on internal error it degrades to
// ActionPass with a zero-value result rather than blocking storage
// (spec section 4.1 step 2's "if it errors it must degrade to pass").
func Scan(content string, opts Options) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = Result{Action: ActionPass, Content: content}
		}
		result.ScanDurationMS = float64(time.Since(start).Microseconds()) / 1000.0
	}()

	out := content
	var findings []Finding
	layers := 0

	if opts.L1Enabled {
		layers++
		for _, p := range hardSecretPatterns {
			if loc := p.re.FindStringIndex(out); loc != nil {
				if opts.L2Enabled && isDisclaimedExample(out, loc) {
					continue
				}
				return Result{
					Action:         ActionBlocked,
					Content:        content,
					Findings:       []Finding{{Type: p.name, Span: [2]int{loc[0], loc[1]}}},
					LayersExecuted: layers,
				}
			}
		}

		out, findings = maskAll(out, emailPattern, "email", "[EMAIL_REDACTED]", findings)
		out, findings = maskAll(out, phonePattern, "phone", "[PHONE_REDACTED]", findings)
		out, findings = maskAll(out, ipv4Pattern, "ipv4", "[IP_REDACTED]", findings)
	}

	if opts.L2Enabled {
		layers++
	}

	if opts.L3Enabled {
		layers++
		out, findings = scanNames(out, findings)
	}

	action := ActionPass
	if len(findings) > 0 {
		action = ActionMasked
	}

	return Result{
		Action:         action,
		Content:        out,
		Findings:       findings,
		LayersExecuted: layers,
	}
}

func isDisclaimedExample(content string, loc []int) bool {
	start := loc[0] - 80
	if start < 0 {
		start = 0
	}
	end := loc[1] + 80
	if end > len(content) {
		end = len(content)
	}
	return exampleContextPattern.MatchString(content[start:end])
}

func maskAll(content string, re *regexp.Regexp, kind, replacement string, findings []Finding) (string, []Finding) {
	locs := re.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return content, findings
	}
	for _, loc := range locs {
		findings = append(findings, Finding{Type: kind, Span: [2]int{loc[0], loc[1]}})
	}
	return re.ReplaceAllString(content, replacement), findings
}

// namePattern is a heuristic "Capitalized Capitalized" bigram detector
// standing in for named-entity recognition. No NER library exists
// anywhere in the example pack (see DESIGN.md); this is intentionally
// coarse and only ever masks, never blocks.
var namePattern = regexp.MustCompile(`\b[A-Z][a-z]{1,20}\s[A-Z][a-z]{1,20}\b`)

func scanNames(content string, findings []Finding) (string, []Finding) {
	locs := namePattern.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return content, findings
	}
	for _, loc := range locs {
		findings = append(findings, Finding{Type: "person_name", Span: [2]int{loc[0], loc[1]}})
	}
	return namePattern.ReplaceAllString(content, "[NAME_REDACTED]"), findings
}
