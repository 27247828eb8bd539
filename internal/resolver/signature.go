package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Signature identifies a measure for merge decisions. Two requests with
// equal signatures are emitted as one measure.
type Signature struct {
	Source      string
	Column      string
	Aggregation core.Aggregation
	Filters     string
	AggParams   string
	NonAdditive string
}

func (s Signature) String() string {
	parts := []string{s.Source, s.Column, string(s.Aggregation)}
	if s.Filters != "" {
		parts = append(parts, "where "+s.Filters)
	}
	if s.AggParams != "" {
		parts = append(parts, s.AggParams)
	}
	if s.NonAdditive != "" {
		parts = append(parts, s.NonAdditive)
	}
	return strings.Join(parts, " | ")
}

func signatureOf(req *Request) Signature {
	return Signature{
		Source:      req.Source,
		Column:      req.Column,
		Aggregation: req.Spec.Aggregation,
		Filters:     strings.Join(req.Filters, " AND "),
		AggParams:   aggParamsKey(req.Spec.AggParams),
		NonAdditive: nonAdditiveKey(req.Spec.NonAdditiveDimension),
	}
}

// NormalizeFilters collapses whitespace outside quoted literals, drops empty
// predicates, removes duplicates and sorts, so filter lists compare as sets.
func NormalizeFilters(filters []string) []string {
	if len(filters) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(filters))
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		n := collapseSpace(f)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// collapseSpace trims f and folds whitespace runs into one space. Quoted
// literals are copied unchanged.
func collapseSpace(f string) string {
	var b strings.Builder
	pendingSpace := false
	for i := 0; i < len(f); {
		c := f[i]
		if isSpace(c) {
			pendingSpace = b.Len() > 0
			i++
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		if c == '\'' || c == '"' {
			end := skipQuoted(f, i)
			b.WriteString(f[i:end])
			i = end
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func aggParamsKey(raw map[string]any) string {
	if len(raw) == 0 {
		return ""
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, raw[k])
	}
	return strings.Join(parts, ",")
}

func nonAdditiveKey(nad *core.NonAdditiveDimensionSpec) string {
	if nad == nil {
		return ""
	}
	groupings := append([]string(nil), nad.WindowGroupings...)
	sort.Strings(groupings)
	return fmt.Sprintf("%s/%s/%s", nad.Name, nad.WindowChoice, strings.Join(groupings, ","))
}
