package resolver

import (
	"sort"
	"strings"
)

// sqlWords are identifiers a formula may contain that are not metric names.
var sqlWords = map[string]bool{
	"and": true, "or": true, "not": true, "null": true, "is": true, "in": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
	"true": true, "false": true, "between": true, "like": true, "as": true,
	"distinct": true, "over": true, "partition": true, "by": true,
	"int": true, "integer": true, "float": true, "double": true, "numeric": true,
	"decimal": true, "bigint": true, "varchar": true, "date": true,
}

// tokenize returns the metric names formula references, in order of first
// appearance, and the identifiers that are neither metric names, SQL words,
// function calls nor qualified column parts. Names are matched longest first
// at identifier boundaries, so "revenue" never matches inside "revenue_net".
// names must be sorted.
func tokenize(formula string, names []string) (refs, unknown []string) {
	byLength := append([]string(nil), names...)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i]) > len(byLength[j])
	})

	seenRef := make(map[string]bool)
	seenUnknown := make(map[string]bool)

	for i := 0; i < len(formula); {
		c := formula[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(formula, i)
			continue
		case isDigit(c):
			for i < len(formula) && (isIdentChar(formula[i]) || formula[i] == '.') {
				i++
			}
			continue
		case !isIdentStart(c):
			i++
			continue
		}

		if name := matchName(formula, i, byLength); name != "" {
			if !seenRef[name] {
				seenRef[name] = true
				refs = append(refs, name)
			}
			i += len(name)
			continue
		}

		start := i
		for i < len(formula) && isIdentChar(formula[i]) {
			i++
		}
		word := formula[start:i]
		if isQualified(formula, start, i) || isCall(formula, i) || sqlWords[strings.ToLower(word)] {
			continue
		}
		if !seenUnknown[word] {
			seenUnknown[word] = true
			unknown = append(unknown, word)
		}
	}
	return refs, unknown
}

// matchName returns the longest name starting at i that ends on an
// identifier boundary. Function names and dotted path parts never match.
func matchName(s string, i int, byLength []string) string {
	for _, name := range byLength {
		end := i + len(name)
		if end > len(s) || s[i:end] != name {
			continue
		}
		if end < len(s) && isIdentChar(s[end]) {
			continue
		}
		if isCall(s, end) || isQualified(s, i, end) {
			continue
		}
		return name
	}
	return ""
}

func skipQuoted(s string, i int) int {
	quote := s[i]
	i++
	for i < len(s) {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

// isCall reports whether the identifier ending at end is followed by "(".
func isCall(s string, end int) bool {
	for end < len(s) && isSpace(s[end]) {
		end++
	}
	return end < len(s) && s[end] == '('
}

// isQualified reports whether the identifier is part of a dotted path.
func isQualified(s string, start, end int) bool {
	return (start > 0 && s[start-1] == '.') || (end < len(s) && s[end] == '.')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
