package planner

import (
	"regexp"
	"strings"
)

// fillerVerbs is the fixed set of leading filler verbs stripped by Normalize,
// multi-word verbs listed first so "show me" is stripped before "show".
var fillerVerbs = []string{
	"show me", "look up", "search for", "give me", "bring up",
	"show", "get", "find", "display", "view", "see",
}

var possessivePattern = regexp.MustCompile(`(\w+)s\s+(\w+)`)

// synonymPatterns canonicalizes a small domain synonym set. Order matters:
// patterns are applied in sequence, and the contact/info canonicalization
// runs last so it doesn't clobber a preceding income/properties match.
var synonymPatterns = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`\b(earnings|salary|income)\b`), "income"},
	{regexp.MustCompile(`\b(properties|property)\b`), "properties"},
	{regexp.MustCompile(`\b(info|information|contact)\b`), "contact"},
}

// Normalize canonicalizes surface forms of a user query before cache lookup
// and structural-pattern extraction (§4.C8). It is deterministic and
// idempotent: Normalize(Normalize(q)) == Normalize(q). The rewrite steps are
// repeated until the query stops changing, since one pass can produce text
// that another pass would rewrite again ("property income" becomes
// "properties income", which the possessive rule then collapses).
func Normalize(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	for {
		next := normalizeOnce(normalized)
		if next == normalized {
			return normalized
		}
		normalized = next
	}
}

// normalizeOnce applies one pass of filler stripping, possessive collapsing,
// and synonym canonicalization to an already-lowercased query.
func normalizeOnce(normalized string) string {
	for _, filler := range fillerVerbs {
		if strings.HasPrefix(normalized, filler+" ") {
			normalized = strings.TrimSpace(normalized[len(filler):])
			break
		}
	}

	normalized = possessivePattern.ReplaceAllString(normalized, "$1's $2")

	for _, syn := range synonymPatterns {
		normalized = syn.pattern.ReplaceAllString(normalized, syn.replace)
	}

	return normalized
}
