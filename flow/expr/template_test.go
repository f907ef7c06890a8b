package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegments(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		segs := Segments("hello world")
		require.Len(t, segs, 1)
		assert.Equal(t, SegmentText, segs[0].Kind)
		assert.Equal(t, "hello world", segs[0].Value)
		assert.Equal(t, 0, segs[0].Start)
		assert.Equal(t, 11, segs[0].End)
	})

	t.Run("single expression", func(t *testing.T) {
		segs := Segments("{{ name }}")
		require.Len(t, segs, 1)
		assert.Equal(t, SegmentExpression, segs[0].Kind)
		assert.Equal(t, "name", segs[0].Value)
		assert.Equal(t, 0, segs[0].Start)
		assert.Equal(t, 10, segs[0].End)
	})

	t.Run("mixed", func(t *testing.T) {
		segs := Segments("Got: {{input}}!")
		require.Len(t, segs, 3)
		assert.Equal(t, "Got: ", segs[0].Value)
		assert.Equal(t, "input", segs[1].Value)
		assert.Equal(t, 5, segs[1].Start)
		assert.Equal(t, 14, segs[1].End)
		assert.Equal(t, "!", segs[2].Value)
	})

	t.Run("escaped braces are literal", func(t *testing.T) {
		segs := Segments(`\{{not an expr}}`)
		require.Len(t, segs, 1)
		assert.Equal(t, SegmentText, segs[0].Kind)
		assert.Equal(t, "{{not an expr}}", segs[0].Value)
	})

	t.Run("braces inside string literal do not close", func(t *testing.T) {
		segs := Segments(`{{ '}}' + x }}`)
		require.Len(t, segs, 1)
		assert.Equal(t, SegmentExpression, segs[0].Kind)
		assert.Equal(t, `'}}' + x`, segs[0].Value)
	})

	t.Run("escaped quote inside string literal", func(t *testing.T) {
		segs := Segments(`{{ 'a\'}}b' }} tail`)
		require.Len(t, segs, 2)
		assert.Equal(t, SegmentExpression, segs[0].Kind)
		assert.Equal(t, " tail", segs[1].Value)
	})

	t.Run("unterminated open becomes text", func(t *testing.T) {
		segs := Segments("before {{ never closes")
		require.Len(t, segs, 1)
		assert.Equal(t, SegmentText, segs[0].Kind)
		assert.Equal(t, "before {{ never closes", segs[0].Value)
	})
}

func TestRenderTemplate(t *testing.T) {
	c := ctx(map[string]any{
		"name":  "world",
		"count": float64(3),
		"items": []any{float64(1), float64(2)},
		"obj":   map[string]any{"a": float64(1)},
	})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"no expressions", "plain", "plain"},
		{"interpolation", "hello {{name}}", "hello world"},
		{"number renders without decimal", "n={{count}}", "n=3"},
		{"absent renders empty", "x={{missing}}y", "x=y"},
		{"array renders as json", "{{items}}", "[1,2]"},
		{"object renders as json", "{{obj}}", `{"a":1}`},
		{"multiple segments", "{{name}}-{{count}}", "world-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.template, c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTemplateErrorContext(t *testing.T) {
	_, err := RenderTemplate("prefix {{obj.__proto__}}", ctx(map[string]any{"obj": map[string]any{}}))
	require.Error(t, err)

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "prefix {{obj.__proto__}}", ee.Template)
	assert.Equal(t, 7, ee.Pos)
	assert.Contains(t, ee.Message, "security")
}

func TestEvaluateTemplateValue(t *testing.T) {
	c := ctx(map[string]any{"items": []any{float64(1), float64(2)}})

	t.Run("bare expression keeps type", func(t *testing.T) {
		got, err := EvaluateTemplateValue("{{items}}", c)
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(2)}, got)
	})

	t.Run("surrounded expression renders", func(t *testing.T) {
		got, err := EvaluateTemplateValue("x {{items}}", c)
		require.NoError(t, err)
		assert.Equal(t, "x [1,2]", got)
	})
}
