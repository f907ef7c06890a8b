package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/flowmark/flow"
)

// templateTransform returns the resolved template value. Config strings
// are template-resolved by the executor before dispatch, so by the time
// this runs, cfg["template"] already holds the rendered result with the
// expression's native type preserved for single-expression templates.
func templateTransform(_ context.Context, req *flow.Request) (any, error) {
	v, ok := req.Config["template"]
	if !ok {
		return nil, fmt.Errorf("transform:template requires a template config value")
	}
	return v, nil
}

// extractTransform pulls a value out of the node input by path, e.g.
// "user.addresses[0].city". A missing path yields nil rather than an
// error, matching expression member-access semantics.
func extractTransform(_ context.Context, req *flow.Request) (any, error) {
	path := stringConfig(req.Config, "path", "")
	if path == "" {
		return nil, fmt.Errorf("transform:extract requires a path config value")
	}
	return extractPath(req.Input, path)
}

func extractPath(v any, path string) (any, error) {
	cur := v
	for _, part := range splitPath(path) {
		if cur == nil {
			return nil, nil
		}
		if idx, err := strconv.Atoi(part); err == nil {
			arr, ok := cur.([]any)
			if !ok {
				return nil, nil
			}
			if idx < 0 || idx >= len(arr) {
				return nil, nil
			}
			cur = arr[idx]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		cur = m[part]
	}
	return cur, nil
}

// splitPath breaks "a.b[0].c" into ["a", "b", "0", "c"].
func splitPath(path string) []string {
	var parts []string
	for _, seg := range strings.Split(path, ".") {
		for {
			open := strings.IndexByte(seg, '[')
			if open < 0 {
				if seg != "" {
					parts = append(parts, seg)
				}
				break
			}
			if open > 0 {
				parts = append(parts, seg[:open])
			}
			close := strings.IndexByte(seg, ']')
			if close < 0 {
				break
			}
			parts = append(parts, seg[open+1:close])
			seg = seg[close+1:]
		}
	}
	return parts
}
