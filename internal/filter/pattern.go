// Package filter implements the glob pattern algebra and the include/exclude
// filter types (FilterString, SourceFilter, FieldsFilter) used to narrow
// Elasticsearch index, type and field access.
package filter

import (
	"regexp"
	"strings"
)

// tokenKind classifies one element of a compiled Pattern.
type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenAny1  // '?' - exactly one character
	tokenAnySeq // '*' - zero or more characters
)

type token struct {
	kind tokenKind
	lit  rune
}

// Pattern is a literal string with two wildcards: '*' (zero or more
// characters) and '?' (exactly one character).
type Pattern struct {
	text   string
	tokens []token
	re     *regexp.Regexp
}

// NewPattern compiles text into a Pattern. An empty string is a valid
// pattern that only matches the empty string.
func NewPattern(text string) Pattern {
	p := Pattern{text: text}
	p.tokens = tokenize(text)
	p.re = regexp.MustCompile("^" + toRegex(text) + "$")
	return p
}

func tokenize(text string) []token {
	tokens := make([]token, 0, len(text))
	for _, r := range text {
		switch r {
		case '*':
			tokens = append(tokens, token{kind: tokenAnySeq})
		case '?':
			tokens = append(tokens, token{kind: tokenAny1})
		default:
			tokens = append(tokens, token{kind: tokenLiteral, lit: r})
		}
	}
	return tokens
}

func toRegex(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// String returns the pattern's literal source text.
func (p Pattern) String() string {
	return p.text
}

// IsWildcardOnly reports whether the pattern is the single maximum pattern
// "*", which matches every string under the containment order.
func (p Pattern) IsWildcardOnly() bool {
	return p.text == "*"
}

// MatchString reports whether s is one of the concrete strings this pattern
// matches.
func (p Pattern) MatchString(s string) bool {
	return p.re.MatchString(s)
}

// Matches reports whether every string matched by other is also matched by
// p - that is, whether p's language contains other's language.
func (p Pattern) Matches(other Pattern) bool {
	return contains(p.tokens, other.tokens)
}

// Equal reports literal text equality, not language equality.
func (p Pattern) Equal(other Pattern) bool {
	return p.text == other.text
}

// GreaterOrEqual reports contains-or-equal: p >= other.
func (p Pattern) GreaterOrEqual(other Pattern) bool {
	return p.Matches(other)
}

// Greater reports whether p strictly contains other (p > other): p covers
// every string other covers, and the two are not the same literal pattern.
// Equal texts always yield false here; different texts with the same
// language (e.g. "*" and "**") are each Greater than the other.
func (p Pattern) Greater(other Pattern) bool {
	return !p.Equal(other) && p.Matches(other)
}

// contains decides language containment L(b) subseteq L(a) over token
// streams built only from literals, '?' and '*'. The recursion treats '*'
// as able to absorb any whole number of b's tokens (since '*' matches any
// sequence, the tokens it swallows are always valid), which lets it reduce
// to a straightforward unique-decomposition DP comparable to the classic
// wildcard-matching recurrence, applied at the token level instead of the
// character level.
func contains(a, b []token) bool {
	memo := make(map[[2]int]bool)
	var rec func(i, j int) bool
	rec = func(i, j int) bool {
		key := [2]int{i, j}
		if v, ok := memo[key]; ok {
			return v
		}
		var result bool
		switch {
		case i == len(a) && j == len(b):
			result = true
		case i == len(a):
			// a is exhausted but b still has tokens left - an exhausted a
			// can only contain the empty continuation, star or not.
			result = false
		case j == len(b):
			result = allStar(a[i:])
		default:
			switch a[i].kind {
			case tokenLiteral:
				result = b[j].kind == tokenLiteral && a[i].lit == b[j].lit && rec(i+1, j+1)
			case tokenAny1:
				result = b[j].kind != tokenAnySeq && rec(i+1, j+1)
			case tokenAnySeq:
				for jp := j; jp <= len(b); jp++ {
					if rec(i+1, jp) {
						result = true
						break
					}
				}
			}
		}
		memo[key] = result
		return result
	}
	return rec(0, 0)
}

func allStar(tokens []token) bool {
	for _, t := range tokens {
		if t.kind != tokenAnySeq {
			return false
		}
	}
	return true
}
