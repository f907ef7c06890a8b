package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/flowmark/flow"
)

// HTTPRuntime implements http:source and http:sink. Sources default to
// GET and return the decoded response; sinks default to POST and send
// the node input as the body when no explicit body is configured.
//
// Config keys: url (required), method, headers (object), body,
// timeoutMs. JSON responses decode to structured values; everything
// else comes back as a string.
type HTTPRuntime struct {
	// Client overrides the default client, mainly for tests.
	Client *http.Client

	sink bool
}

func (h *HTTPRuntime) Execute(ctx context.Context, req *flow.Request) (any, error) {
	url := stringConfig(req.Config, "url", "")
	if url == "" {
		return nil, fmt.Errorf("http runtime requires a url config value")
	}

	defaultMethod := http.MethodGet
	if h.sink {
		defaultMethod = http.MethodPost
	}
	method := strings.ToUpper(stringConfig(req.Config, "method", defaultMethod))

	body, hasBody := req.Config["body"]
	if !hasBody && h.sink {
		body, hasBody = req.Input, req.Input != nil
	}

	var reader io.Reader
	contentType := ""
	if hasBody {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			reader = bytes.NewReader(data)
			contentType = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if headers, ok := req.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			httpReq.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	client := h.Client
	if client == nil {
		client = &http.Client{}
	}
	if ms := intConfig(req.Config, "timeoutMs", 0); ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
		httpReq = httpReq.WithContext(ctx)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(data, &decoded); err == nil {
			return decoded, nil
		}
	}
	return string(data), nil
}
