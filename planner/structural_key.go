package planner

import (
	"strings"
	"unicode"
)

// queryToken is one token of a structurally-templated query: either a typed
// placeholder (PERSON/NUMBER) or a literal word that must match exactly
// (after synonym canonicalization) for two queries to share a structural
// pattern.
type queryToken struct {
	// Placeholder is e.g. "{PERSON_0}"; empty for a literal token.
	Placeholder string
	// Literal is the canonicalized (lowercased, synonym-folded) text used
	// for equality comparison when Placeholder == "".
	Literal string
	// Raw is the original token text as it appeared in the query, used to
	// drive a fresh entity-resolution lookup when Placeholder != "".
	Raw string
}

// IsPlaceholder reports whether t is a typed slot rather than a literal.
func (t queryToken) IsPlaceholder() bool { return t.Placeholder != "" }

// structuralBaseForm strips the leading filler verb and collapses bare
// possessives, like Normalize, but preserves case so capitalized names can
// still be recognized as PERSON tokens (§4.C9). Normalize's full
// lowercasing would make that recognition impossible, so the two
// transforms intentionally diverge here.
func structuralBaseForm(query string) string {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	for _, filler := range fillerVerbs {
		if strings.HasPrefix(lower, filler+" ") {
			trimmed = strings.TrimSpace(trimmed[len(filler):])
			break
		}
	}

	return possessivePattern.ReplaceAllString(trimmed, "$1's $2")
}

// tokenizeStructural splits a query into typed queryTokens: possessive- and
// bare-Capitalized words both type as PERSON, digit runs type as NUMBER;
// every other word is kept literal (see classifyToken).
func tokenizeStructural(query string) []queryToken {
	base := structuralBaseForm(query)
	words := strings.Fields(base)

	counters := map[string]int{}
	tokens := make([]queryToken, 0, len(words))
	for _, word := range words {
		typ, ok := classifyToken(word)
		if !ok {
			tokens = append(tokens, queryToken{Literal: canonicalizeWord(word), Raw: word})
			continue
		}
		idx := counters[typ]
		counters[typ]++
		tokens = append(tokens, queryToken{
			Placeholder: placeholderLabel(typ, idx),
			Raw:         word,
		})
	}
	return tokens
}

func placeholderLabel(typ string, index int) string {
	return "{" + typ + "_" + itoa(index) + "}"
}

// classifyToken types one whitespace-delimited word per the §4.C9 priority
// order: possessive-capitalized and bare-capitalized both type as an entity
// placeholder, digit runs type as NUMBER. Unlike the reference
// implementation, ordinary lowercase words ("properties", "documents") are
// NOT swept into a generic placeholder: the reference's WORD regex matches
// every remaining word unconditionally, which would make two structurally
// unrelated queries of equal length (e.g. "Michael's properties" and
// "Michael's documents") collide on the same cached route. Treating them as
// literal (but synonym-canonicalized, see canonicalizeWord) tokens keeps the
// two queries distinct while still letting "earnings" and "income" reuse
// each other's cache entry.
func classifyToken(word string) (string, bool) {
	stem := strings.TrimSuffix(word, "'s")
	if stem != word && isCapitalizedWord(stem) {
		return "PERSON", true
	}
	if isCapitalizedWord(word) {
		return "PERSON", true
	}
	if isDigits(word) {
		return "NUMBER", true
	}
	return "", false
}

func isCapitalizedWord(s string) bool {
	r := []rune(s)
	if len(r) == 0 || !unicode.IsUpper(r[0]) {
		return false
	}
	for _, c := range r[1:] {
		if !unicode.IsLetter(c) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return true
}

// canonicalizeWord lowercases and synonym-folds a literal token so
// equivalent surface forms ("earnings" / "income") compare equal when
// matching a structural pattern.
func canonicalizeWord(word string) string {
	out := strings.ToLower(word)
	for _, syn := range synonymPatterns {
		out = syn.pattern.ReplaceAllString(out, syn.replace)
	}
	return out
}

// tokensMatch reports whether candidate has the same shape as pattern:
// equal length, and every literal pattern token equals (after
// canonicalization) the corresponding candidate token.
func tokensMatch(pattern, candidate []queryToken) bool {
	if len(pattern) != len(candidate) {
		return false
	}
	for i, p := range pattern {
		if p.IsPlaceholder() {
			continue
		}
		if p.Literal != canonicalizeWord(candidate[i].Raw) {
			return false
		}
	}
	return true
}

// itoa avoids importing strconv for a single non-negative small integer.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
