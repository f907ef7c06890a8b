package expr

import "strings"

// SegmentKind distinguishes literal text from embedded expressions.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentExpression
)

// Segment is one piece of a segmented template. Start and End are byte
// offsets into the original template string; for expression segments they
// span the full "{{...}}" including the braces.
type Segment struct {
	Kind  SegmentKind
	Value string // literal text, or the expression source between the braces
	Start int
	End   int
}

// Segments splits a template into an ordered sequence of text and
// expression segments.
//
// Rules:
//   - "\{{" is an escaped literal "{{" and does not open an expression.
//   - "{{" opens an expression closed by the next "}}" that is not inside
//     a single- or double-quoted string literal (backslash escapes are
//     honored inside strings).
//   - An unterminated "{{" turns the remainder of the template, braces
//     included, into a single text segment.
func Segments(template string) []Segment {
	var segs []Segment
	var text strings.Builder
	textStart := 0
	i := 0

	flushText := func(end int) {
		if text.Len() > 0 {
			segs = append(segs, Segment{Kind: SegmentText, Value: text.String(), Start: textStart, End: end})
			text.Reset()
		}
	}

	for i < len(template) {
		if template[i] == '\\' && strings.HasPrefix(template[i:], `\{{`) {
			if text.Len() == 0 {
				textStart = i
			}
			text.WriteString("{{")
			i += 3
			continue
		}
		if strings.HasPrefix(template[i:], "{{") {
			end, ok := findClose(template, i+2)
			if !ok {
				// Unterminated: the rest is literal text.
				if text.Len() == 0 {
					textStart = i
				}
				text.WriteString(template[i:])
				i = len(template)
				break
			}
			flushText(i)
			segs = append(segs, Segment{
				Kind:  SegmentExpression,
				Value: strings.TrimSpace(template[i+2 : end]),
				Start: i,
				End:   end + 2,
			})
			i = end + 2
			textStart = i
			continue
		}
		if text.Len() == 0 {
			textStart = i
		}
		text.WriteByte(template[i])
		i++
	}
	flushText(len(template))
	return segs
}

// findClose scans from offset for the matching "}}", skipping over quoted
// string literals. Returns the offset of the closing braces.
func findClose(s string, from int) (int, bool) {
	i := from
	for i < len(s) {
		switch c := s[i]; c {
		case '\'', '"':
			i++
			for i < len(s) && s[i] != c {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			i++ // closing quote (or past end)
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				return i, true
			}
			i++
		default:
			i++
		}
	}
	return 0, false
}

// HasExpression reports whether the template contains at least one
// expression segment.
func HasExpression(template string) bool {
	for _, seg := range Segments(template) {
		if seg.Kind == SegmentExpression {
			return true
		}
	}
	return false
}

// RenderTemplate evaluates every expression segment against ctx and
// concatenates the renderings.
//
// Absent values render as the empty string, primitives render via string
// coercion and everything else renders as canonical JSON. Evaluation
// errors are re-raised with the template string and the segment's byte
// span attached.
func RenderTemplate(template string, ctx *Context) (string, error) {
	segs := Segments(template)

	// A template that is a single bare expression returns the value's
	// rendering, but callers that want the raw value should use
	// EvaluateTemplateValue.
	var sb strings.Builder
	for _, seg := range segs {
		if seg.Kind == SegmentText {
			sb.WriteString(seg.Value)
			continue
		}
		v, err := Evaluate(seg.Value, ctx)
		if err != nil {
			return "", withTemplate(err, template, seg.Start)
		}
		sb.WriteString(Render(v))
	}
	return sb.String(), nil
}

// EvaluateTemplateValue is like RenderTemplate but preserves the value's
// type when the template consists of exactly one expression segment and
// nothing else. "{{items}}" yields the slice itself rather than its JSON
// rendering; any surrounding text falls back to string concatenation.
func EvaluateTemplateValue(template string, ctx *Context) (any, error) {
	segs := Segments(template)
	if len(segs) == 1 && segs[0].Kind == SegmentExpression {
		v, err := Evaluate(segs[0].Value, ctx)
		if err != nil {
			return nil, withTemplate(err, template, segs[0].Start)
		}
		return v, nil
	}
	return RenderTemplate(template, ctx)
}
