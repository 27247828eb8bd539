package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies compile errors for reporting and escalation.
type ErrorKind string

// Error kinds, in reporting order.
const (
	KindParse         ErrorKind = "parse"
	KindSchema        ErrorKind = "schema"
	KindReference     ErrorKind = "reference"
	KindNameCollision ErrorKind = "name_collision"
	KindIOWrite       ErrorKind = "io_write"
)

// ErrorKinds lists every kind in reporting order.
var ErrorKinds = []ErrorKind{KindParse, KindSchema, KindReference, KindNameCollision, KindIOWrite}

// Sentinels for errors.Is matching against a CompileError's kind.
var (
	ErrParse         = errors.New("parse error")
	ErrSchema        = errors.New("schema error")
	ErrReference     = errors.New("reference error")
	ErrNameCollision = errors.New("name collision")
	ErrIOWrite       = errors.New("write error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindParse:
		return ErrParse
	case KindSchema:
		return ErrSchema
	case KindReference:
		return ErrReference
	case KindNameCollision:
		return ErrNameCollision
	case KindIOWrite:
		return ErrIOWrite
	}
	return nil
}

// Blocking reports whether errors of this kind always fail the run.
// Reference and name-collision errors are never downgraded by configuration.
func (k ErrorKind) Blocking() bool {
	return k == KindReference || k == KindNameCollision
}

// CompileError is a diagnostic produced by any pipeline stage.
type CompileError struct {
	Kind    ErrorKind
	Path    string
	Pos     Position
	Metrics []string
	Message string
	Err     error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		if !e.Pos.IsZero() {
			b.WriteString(":")
			b.WriteString(e.Pos.String())
		}
		b.WriteString(": ")
	}
	switch len(e.Metrics) {
	case 0:
	case 1:
		fmt.Fprintf(&b, "metric %q: ", e.Metrics[0])
	default:
		fmt.Fprintf(&b, "metrics %s: ", strings.Join(quoteAll(e.Metrics), ", "))
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *CompileError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewParseError reports a malformed document.
func NewParseError(path string, pos Position, msg string, cause error) *CompileError {
	return &CompileError{Kind: KindParse, Path: path, Pos: pos, Message: msg, Err: cause}
}

// NewSchemaError reports an invalid or missing field on one metric.
func NewSchemaError(m *MetricDefinition, pos Position, format string, args ...any) *CompileError {
	if pos.IsZero() {
		pos = m.Pos
	}
	e := &CompileError{
		Kind:    KindSchema,
		Path:    m.Path,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
	if m.Name != "" {
		e.Metrics = []string{m.Name}
	}
	return e
}

// NewReferenceError reports an unknown reference or a reference cycle.
func NewReferenceError(m *MetricDefinition, metrics []string, format string, args ...any) *CompileError {
	e := &CompileError{
		Kind:    KindReference,
		Metrics: metrics,
		Message: fmt.Sprintf(format, args...),
	}
	if m != nil {
		e.Path, e.Pos = m.Path, m.Pos
	}
	return e
}

// NewNameCollisionError reports a duplicate name or an ambiguous redefinition.
func NewNameCollisionError(m *MetricDefinition, metrics []string, format string, args ...any) *CompileError {
	e := &CompileError{
		Kind:    KindNameCollision,
		Metrics: metrics,
		Message: fmt.Sprintf(format, args...),
	}
	if m != nil {
		e.Path, e.Pos = m.Path, m.Pos
	}
	return e
}

// NewIOWriteError reports an output file that could not be written.
func NewIOWriteError(path string, cause error) *CompileError {
	return &CompileError{Kind: KindIOWrite, Path: path, Message: "cannot write output", Err: cause}
}

// SortErrors orders errors by kind, then location, then message, so reports
// are stable across runs.
func SortErrors(errs []*CompileError) {
	rank := make(map[ErrorKind]int, len(ErrorKinds))
	for i, k := range ErrorKinds {
		rank[k] = i
	}
	sort.SliceStable(errs, func(i, j int) bool {
		a, b := errs[i], errs[j]
		if a.Kind != b.Kind {
			return rank[a.Kind] < rank[b.Kind]
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Pos.Line != b.Pos.Line {
			return a.Pos.Line < b.Pos.Line
		}
		if a.Pos.Column != b.Pos.Column {
			return a.Pos.Column < b.Pos.Column
		}
		return a.Error() < b.Error()
	})
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
