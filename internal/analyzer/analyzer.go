// Package analyzer implements §4.B of the memory engine: Unicode-aware
// tokenization, code-symbol splitting (CamelCase / snake_case), stopword
// removal, and content-pattern tag inference. The CamelCase/snake_case
// splitting strategy is grounded on the retrieval pack's semantic
// name-splitter (case-transition + separator detection), adapted here into
// a single-pass splitter scoped to the analyzer's needs.
package analyzer

import (
	"strings"
	"unicode"
)

// Tag is a memory tag; a plain string alias keeps the analyzer
// dependency-free.
type Tag = string

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {}, "then": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "it": {}, "its": {}, "as": {},
	"from": {}, "into": {}, "about": {}, "we": {}, "i": {}, "you": {}, "they": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "can": {}, "could": {},
	"should": {}, "not": {}, "no": {}, "so": {}, "all": {}, "any": {}, "has": {},
	"have": {}, "had": {},
}

// Document is an analyzed body of text: its raw tokens (kept for vector
// search) and its filtered keyword set (stopwords removed, used for lexical
// indexing).
type Document struct {
	Tokens   []string
	Keywords []string
}

// Analyze tokenizes text and derives a Document. Tokenization lowercases and
// splits on non-letter/non-digit runes; CamelCase and snake_case identifiers
// additionally contribute their constituent parts (both the whole token and
// its parts are emitted) so code symbols are searchable by part or whole.
func Analyze(text string) Document {
	raw := tokenize(text)

	var all []string
	for _, tok := range raw {
		all = append(all, strings.ToLower(tok))
		if parts := splitCodeSymbol(tok); len(parts) > 1 {
			all = append(all, parts...)
		}
	}

	keywords := make([]string, 0, len(all))
	for _, tok := range all {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if tok == "" {
			continue
		}
		keywords = append(keywords, tok)
	}

	return Document{Tokens: all, Keywords: dedupe(keywords)}
}

// tokenize splits on runs of non-alphanumeric characters, keeping each
// token's original case so splitCodeSymbol can still see CamelCase
// transitions; Analyze lowercases the whole token and splitCodeSymbol
// lowercases the parts, so both survive into the token stream.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// splitCodeSymbol splits an identifier on underscores and CamelCase
// transitions, returning the lowercase constituent parts. Returns a single
// element slice (just tok) if no split points were found.
func splitCodeSymbol(tok string) []string {
	if !strings.ContainsAny(tok, "_") && !hasCaseTransition(tok) {
		return []string{tok}
	}

	var parts []string
	var cur strings.Builder
	runes := []rune(tok)

	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	for i, r := range runes {
		if r == '_' {
			flush()
			continue
		}
		if i > 0 {
			prev := runes[i-1]
			// lower->upper (camelCase boundary)
			if unicode.IsLower(prev) && unicode.IsUpper(r) {
				flush()
			}
			// uppercase run followed by lowercase (acronym boundary), e.g. "HTTPServer" -> HTTP, Server
			if i > 1 && unicode.IsUpper(prev) && unicode.IsUpper(runes[i-2]) && unicode.IsLower(r) {
				last := cur.String()
				if len(last) > 1 {
					boundary := []rune(last)
					head := string(boundary[:len(boundary)-1])
					tail := string(boundary[len(boundary)-1])
					cur.Reset()
					if head != "" {
						parts = append(parts, strings.ToLower(head))
					}
					cur.WriteString(tail)
				}
			}
		}
		cur.WriteRune(r)
	}
	flush()

	if len(parts) <= 1 {
		return []string{tok}
	}
	return parts
}

func hasCaseTransition(tok string) bool {
	runes := []rune(tok)
	for i := 1; i < len(runes); i++ {
		if unicode.IsLower(runes[i-1]) && unicode.IsUpper(runes[i]) {
			return true
		}
		if i > 1 && unicode.IsUpper(runes[i-2]) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i]) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// tagRule is a content-pattern -> tag inference rule (§4.B tag inference).
type tagRule struct {
	triggers []string
	tag      string
}

var tagRules = []tagRule{
	{[]string{"fix", "bug", "error", "broken", "crash"}, "bugfix"},
	{[]string{"todo", "hack", "workaround", "temporary"}, "tech-debt"},
	{[]string{"cache", "slow", "fast", "performance", "optimize"}, "perf"},
}

// InferTags appends inferred tags to existing based on content and category;
// it never removes or replaces caller-supplied tags. category should be one
// of "decision", "pattern", "warning", "learning".
func InferTags(content string, category string, existing []string) []string {
	lower := strings.ToLower(content)
	tags := append([]string{}, existing...)

	has := func(t string) bool {
		for _, e := range tags {
			if e == t {
				return true
			}
		}
		return false
	}

	for _, rule := range tagRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(lower, trigger) {
				if !has(rule.tag) {
					tags = append(tags, rule.tag)
				}
				break
			}
		}
	}

	if category == "warning" && !has("warning") {
		tags = append(tags, "warning")
	}

	return tags
}
