package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Builtins returns the standard whitelisted function table.
//
// Every function is pure except now(), which reads the wall clock. None
// of them can reach the secrets table or process state: they operate only
// on their argument values.
func Builtins() map[string]Builtin {
	return map[string]Builtin{
		"json_encode": builtinJSONEncode,
		"json_decode": builtinJSONDecode,
		"length":      builtinLength,
		"concat":      builtinConcat,
		"now":         builtinNow,
		"upper":       builtinUpper,
		"lower":       builtinLower,
		"trim":        builtinTrim,
		"split":       builtinSplit,
		"join":        builtinJoin,
		"keys":        builtinKeys,
		"contains":    builtinContains,
	}
}

func wantArgs(args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	return nil
}

func builtinJSONEncode(args []any) (any, error) {
	if err := wantArgs(args, 1); err != nil {
		return nil, err
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func builtinJSONDecode(args []any) (any, error) {
	if err := wantArgs(args, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, errors.New("argument must be a string")
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func builtinLength(args []any) (any, error) {
	if err := wantArgs(args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case nil:
		return float64(0), nil
	case string:
		return float64(len(v)), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	}
	return nil, errors.New("argument must be a string, array or object")
}

func builtinConcat(args []any) (any, error) {
	// concat over arrays flattens them; anything else is appended as a
	// scalar. With only strings it behaves as string concatenation.
	allStrings := len(args) > 0
	for _, a := range args {
		if _, ok := a.(string); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(a.(string))
		}
		return sb.String(), nil
	}
	var out []any
	for _, a := range args {
		if arr, ok := a.([]any); ok {
			out = append(out, arr...)
		} else {
			out = append(out, a)
		}
	}
	return out, nil
}

func builtinNow(args []any) (any, error) {
	if len(args) != 0 {
		return nil, errors.New("expected no arguments")
	}
	return time.Now().UTC().Format(time.RFC3339), nil
}

func stringArg(args []any, fn func(string) any) (any, error) {
	if err := wantArgs(args, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		if args[0] == nil {
			return nil, nil
		}
		s = Render(args[0])
	}
	return fn(s), nil
}

func builtinUpper(args []any) (any, error) {
	return stringArg(args, func(s string) any { return strings.ToUpper(s) })
}

func builtinLower(args []any) (any, error) {
	return stringArg(args, func(s string) any { return strings.ToLower(s) })
}

func builtinTrim(args []any) (any, error) {
	return stringArg(args, func(s string) any { return strings.TrimSpace(s) })
}

func builtinSplit(args []any) (any, error) {
	if err := wantArgs(args, 2); err != nil {
		return nil, err
	}
	s, ok1 := args[0].(string)
	sep, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, errors.New("arguments must be strings")
	}
	parts := strings.Split(s, sep)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func builtinJoin(args []any) (any, error) {
	if err := wantArgs(args, 2); err != nil {
		return nil, err
	}
	arr, ok1 := args[0].([]any)
	sep, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, errors.New("arguments must be an array and a string")
	}
	parts := make([]string, len(arr))
	for i, v := range arr {
		parts[i] = Render(v)
	}
	return strings.Join(parts, sep), nil
}

func builtinKeys(args []any) (any, error) {
	if err := wantArgs(args, 1); err != nil {
		return nil, err
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, errors.New("argument must be an object")
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, k := range names {
		out[i] = k
	}
	return out, nil
}

func builtinContains(args []any) (any, error) {
	if err := wantArgs(args, 2); err != nil {
		return nil, err
	}
	switch hay := args[0].(type) {
	case string:
		needle, ok := args[1].(string)
		if !ok {
			needle = Render(args[1])
		}
		return strings.Contains(hay, needle), nil
	case []any:
		for _, v := range hay {
			if looseEquals(v, args[1]) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, exists := hay[Render(args[1])]
		return exists, nil
	}
	return nil, errors.New("first argument must be a string, array or object")
}
