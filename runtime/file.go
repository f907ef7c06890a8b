package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/flowmark/flow"
)

// fileSource reads a file. Config: path (required), format ("json" or
// "text", default text). JSON files decode to structured values.
func fileSource(_ context.Context, req *flow.Request) (any, error) {
	path := stringConfig(req.Config, "path", "")
	if path == "" {
		return nil, fmt.Errorf("file:source requires a path config value")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if stringConfig(req.Config, "format", "text") == "json" {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return v, nil
	}
	return string(data), nil
}

// fileSink writes its content (config "content", defaulting to the node
// input) to a file. Structured values serialize as indented JSON.
// Config: path (required), append (bool). Output is the written path.
func fileSink(_ context.Context, req *flow.Request) (any, error) {
	path := stringConfig(req.Config, "path", "")
	if path == "" {
		return nil, fmt.Errorf("file:sink requires a path config value")
	}

	content, ok := req.Config["content"]
	if !ok {
		content = req.Input
	}
	var data []byte
	switch c := content.(type) {
	case string:
		data = []byte(c)
	case nil:
		data = []byte{}
	default:
		var err error
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode content for %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}

	if appendMode, _ := req.Config["append"].(bool); appendMode {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		if _, err := f.Write(data); err != nil {
			return nil, fmt.Errorf("append to %s: %w", path, err)
		}
		return path, nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
