package core

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileError_Error(t *testing.T) {
	m := &MetricDefinition{Name: "revenue", Path: "metrics/orders.yml", Pos: Position{Line: 4, Column: 5}}

	err := NewSchemaError(m, Position{}, "description is required")
	assert.Equal(t, `metrics/orders.yml:4:5: metric "revenue": description is required`, err.Error())

	cycle := NewReferenceError(nil, []string{"a", "b"}, "reference cycle: a -> b -> a")
	assert.Equal(t, `metrics "a", "b": reference cycle: a -> b -> a`, cycle.Error())

	write := NewIOWriteError("models/out.yml", fs.ErrPermission)
	assert.Contains(t, write.Error(), "models/out.yml: cannot write output")
}

func TestCompileError_Is(t *testing.T) {
	m := &MetricDefinition{Name: "x"}
	assert.True(t, errors.Is(NewSchemaError(m, Position{}, "bad"), ErrSchema))
	assert.False(t, errors.Is(NewSchemaError(m, Position{}, "bad"), ErrParse))
	assert.True(t, errors.Is(NewNameCollisionError(m, nil, "dup"), ErrNameCollision))

	write := NewIOWriteError("out.yml", fs.ErrPermission)
	assert.True(t, errors.Is(write, ErrIOWrite))
	assert.True(t, errors.Is(write, fs.ErrPermission))

	var ce *CompileError
	assert.True(t, errors.As(error(write), &ce))
	assert.Equal(t, KindIOWrite, ce.Kind)
}

func TestErrorKind_Blocking(t *testing.T) {
	assert.False(t, KindParse.Blocking())
	assert.False(t, KindSchema.Blocking())
	assert.True(t, KindReference.Blocking())
	assert.True(t, KindNameCollision.Blocking())
	assert.False(t, KindIOWrite.Blocking())
}

func TestSortErrors(t *testing.T) {
	errs := []*CompileError{
		{Kind: KindReference, Message: "cycle"},
		{Kind: KindSchema, Path: "b.yml", Pos: Position{Line: 1, Column: 1}, Message: "x"},
		{Kind: KindSchema, Path: "a.yml", Pos: Position{Line: 9, Column: 1}, Message: "y"},
		{Kind: KindParse, Path: "z.yml", Message: "bad yaml"},
		{Kind: KindSchema, Path: "a.yml", Pos: Position{Line: 2, Column: 3}, Message: "z"},
	}

	SortErrors(errs)

	assert.Equal(t, KindParse, errs[0].Kind)
	assert.Equal(t, "a.yml", errs[1].Path)
	assert.Equal(t, 2, errs[1].Pos.Line)
	assert.Equal(t, "a.yml", errs[2].Path)
	assert.Equal(t, "b.yml", errs[3].Path)
	assert.Equal(t, KindReference, errs[4].Kind)
}
