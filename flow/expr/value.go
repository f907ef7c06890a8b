package expr

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Truthy implements JavaScript-style truthiness: false, 0, NaN, "" and
// absent values are falsy; everything else, including empty arrays and
// objects, is truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	default:
		if n, ok := numeric(v); ok {
			return n != 0 && !math.IsNaN(n)
		}
		return true
	}
}

// numeric returns the float64 value of v when v is any Go numeric type.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToNumber coerces v to a number. Strings parse (empty string is 0,
// unparseable is NaN), booleans map to 0/1, absent maps to 0, and
// composites are NaN.
func ToNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	}
	if n, ok := numeric(v); ok {
		return n
	}
	return math.NaN()
}

// Render produces the template rendering of a value: absent renders as
// the empty string, primitives via string coercion, and composites as
// canonical JSON.
func Render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	}
	if n, ok := numeric(v); ok {
		return formatNumber(n)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// formatNumber renders floats the way JavaScript does for the common
// cases: integral values drop the decimal point.
func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "NaN"
	}
	if math.IsInf(n, 1) {
		return "Infinity"
	}
	if math.IsInf(n, -1) {
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// looseEquals implements == with ECMAScript-like coercion for the value
// domain used here (single absent value, numbers, strings, booleans,
// slices, maps).
func looseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	_, aNum := numeric(a)
	_, bNum := numeric(b)
	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	_, aBool := a.(bool)
	_, bBool := b.(bool)

	switch {
	case aIsStr && bIsStr:
		return aStr == bStr
	case (aNum || aBool || aIsStr) && (bNum || bBool || bIsStr):
		return ToNumber(a) == ToNumber(b)
	default:
		return reflect.DeepEqual(a, b)
	}
}

// strictEquals implements === : no coercion, values must share a type
// category.
func strictEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	an, aNum := numeric(a)
	bn, bNum := numeric(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}
	if aStr, ok := a.(string); ok {
		bStr, ok := b.(string)
		return ok && aStr == bStr
	}
	if aBool, ok := a.(bool); ok {
		bBool, ok := b.(bool)
		return ok && aBool == bBool
	}
	return reflect.DeepEqual(a, b)
}
