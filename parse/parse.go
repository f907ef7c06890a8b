// Package parse loads workflow documents: YAML frontmatter for metadata
// and declared config, and an XML-like body of node elements mapped onto
// the flow AST. Markdown prose between elements is ignored, so workflow
// files read as documentation and execute as programs.
package parse

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/flowmark/flow"
)

// frontmatter is the YAML header between --- markers.
type frontmatter struct {
	Name        string             `yaml:"name"`
	Version     string             `yaml:"version"`
	Description string             `yaml:"description"`
	Trigger     string             `yaml:"trigger"`
	Config      []configFieldYAML  `yaml:"config"`
	Secrets     []string           `yaml:"secrets"`
}

type configFieldYAML struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Default  any            `yaml:"default"`
	Required bool           `yaml:"required"`
	Schema   map[string]any `yaml:"schema"`
}

// LoadFile reads and parses a workflow document from disk.
func LoadFile(path string) (*flow.WorkflowAST, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return Load(data)
}

// Load parses a workflow document.
func Load(data []byte) (*flow.WorkflowAST, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var header frontmatter
	if err := yaml.Unmarshal(fm, &header); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if header.Name == "" {
		return nil, fmt.Errorf("workflow frontmatter must declare a name")
	}

	nodes, err := parseBody(body)
	if err != nil {
		return nil, err
	}

	meta := flow.Metadata{
		Name:        header.Name,
		Version:     header.Version,
		Description: header.Description,
		Trigger:     header.Trigger,
		Secrets:     header.Secrets,
	}
	for _, cf := range header.Config {
		meta.Config = append(meta.Config, flow.ConfigField{
			Name:     cf.Name,
			Type:     cf.Type,
			Default:  cf.Default,
			Required: cf.Required,
			Schema:   cf.Schema,
		})
	}

	ast := &flow.WorkflowAST{Metadata: meta, Nodes: nodes}
	if err := checkNodeIDs(ast); err != nil {
		return nil, err
	}
	return ast, nil
}

// splitFrontmatter separates the YAML header from the document body. A
// document without frontmatter is all body.
func splitFrontmatter(data []byte) (fm, body []byte, err error) {
	trimmed := bytes.TrimLeft(data, "\n\r \t")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return nil, data, nil
	}
	rest := trimmed[3:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated frontmatter")
	}
	fm = rest[:end]
	body = rest[end+4:]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	return fm, body, nil
}

// xmlNode is the raw decoded form of a body element.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (x *xmlNode) attr(name string) string {
	for _, a := range x.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (x *xmlNode) intAttr(name string) int {
	n, _ := strconv.Atoi(x.attr(name))
	return n
}

// parseBody wraps the body in a synthetic root so surrounding prose
// decodes as ignorable character data, then maps each element.
func parseBody(body []byte) ([]*flow.Node, error) {
	wrapped := append([]byte("<workflow>"), body...)
	wrapped = append(wrapped, []byte("</workflow>")...)

	dec := xml.NewDecoder(bytes.NewReader(wrapped))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose

	var root xmlNode
	if err := dec.Decode(&root); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse workflow body: %w", err)
	}

	var nodes []*flow.Node
	for i := range root.Children {
		n, err := mapElement(&root.Children[i])
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// structural attributes that never land in a node's config map.
var reservedAttrs = map[string]bool{
	"id": true, "kind": true, "input": true,
	"max-retries": true, "backoff-base-ms": true, "backoff": true, "fallback": true,
	"condition": true, "collection": true, "item-var": true, "index-var": true,
	"max-concurrency": true, "body": true, "max-iterations": true,
	"break-condition": true, "target": true, "duration-ms": true,
	"on-timeout": true, "wait": true, "merge": true,
}

// mapElement converts one body element to a flow node.
func mapElement(x *xmlNode) (*flow.Node, error) {
	tag := x.XMLName.Local
	n := &flow.Node{
		ID:     x.attr("id"),
		Kind:   x.attr("kind"),
		Input:  x.attr("input"),
		Config: map[string]any{},
	}
	n.Retry = parseRetryAttrs(x)

	switch tag {
	case "source":
		n.Type = flow.NodeSource
	case "transform":
		n.Type = flow.NodeTransform
	case "sink":
		n.Type = flow.NodeSink
	case "parallel":
		n.Type = flow.NodeControl
		n.Kind = "parallel"
		n.Wait = x.attr("wait")
		n.Merge = x.attr("merge")
		n.MaxConcurrency = x.intAttr("max-concurrency")
		for i := range x.Children {
			c := &x.Children[i]
			if c.XMLName.Local != "branch" {
				continue
			}
			branch, err := mapChildren(c)
			if err != nil {
				return nil, err
			}
			n.Branches = append(n.Branches, branch)
		}
	case "foreach":
		n.Type = flow.NodeControl
		n.Kind = "foreach"
		n.Collection = x.attr("collection")
		n.ItemVar = x.attr("item-var")
		n.IndexVar = x.attr("index-var")
		n.MaxConcurrency = x.intAttr("max-concurrency")
		if body := x.attr("body"); body != "" {
			for _, id := range strings.Split(body, ",") {
				if id = strings.TrimSpace(id); id != "" {
					n.BodyNodeIDs = append(n.BodyNodeIDs, id)
				}
			}
		}
	case "loop":
		n.Type = flow.NodeControl
		n.Kind = "loop"
		n.MaxIterations = x.intAttr("max-iterations")
		n.BreakCondition = x.attr("break-condition")
		body, err := mapChildren(x)
		if err != nil {
			return nil, err
		}
		n.Body = body
	case "while":
		n.Type = flow.NodeControl
		n.Kind = "while"
		n.Condition = x.attr("condition")
		n.MaxIterations = x.intAttr("max-iterations")
		body, err := mapChildren(x)
		if err != nil {
			return nil, err
		}
		n.Body = body
	case "if":
		n.Type = flow.NodeControl
		n.Kind = "if"
		n.Condition = x.attr("condition")
		for i := range x.Children {
			c := &x.Children[i]
			arm, err := mapChildren(c)
			if err != nil {
				return nil, err
			}
			switch c.XMLName.Local {
			case "then":
				n.Then = arm
			case "else":
				n.Else = arm
			}
		}
	case "branch":
		n.Type = flow.NodeControl
		n.Kind = "branch"
		for i := range x.Children {
			c := &x.Children[i]
			if c.XMLName.Local != "case" {
				continue
			}
			then, err := mapChildren(c)
			if err != nil {
				return nil, err
			}
			n.Cases = append(n.Cases, flow.Case{When: c.attr("when"), Then: then})
		}
	case "break":
		n.Type = flow.NodeControl
		n.Kind = "break"
		n.Target = x.attr("target")
	case "goto":
		n.Type = flow.NodeControl
		n.Kind = "goto"
		n.Target = x.attr("target")
	case "timeout":
		n.Type = flow.NodeTemporal
		n.Kind = "timeout"
		n.DurationMs = x.intAttr("duration-ms")
		n.OnTimeout = x.attr("on-timeout")
		children, err := mapChildren(x)
		if err != nil {
			return nil, err
		}
		n.Children = children
	case "delay":
		n.Type = flow.NodeTemporal
		n.Kind = "delay"
		n.DurationMs = x.intAttr("duration-ms")
	case "checkpoint":
		n.Type = flow.NodeCheckpoint
	case "include":
		n.Type = flow.NodeComposition
		n.Kind = "include"
	case "call":
		n.Type = flow.NodeComposition
		n.Kind = "call"
	default:
		return nil, fmt.Errorf("unknown workflow element <%s>", tag)
	}

	if n.ID == "" {
		return nil, fmt.Errorf("<%s> element is missing an id attribute", tag)
	}
	if (n.Type == flow.NodeSource || n.Type == flow.NodeTransform || n.Type == flow.NodeSink) && n.Kind == "" {
		return nil, fmt.Errorf("<%s id=%q> is missing a kind attribute", tag, n.ID)
	}

	for _, a := range x.Attrs {
		if !reservedAttrs[a.Name.Local] {
			n.Config[attrKey(a.Name.Local)] = a.Value
		}
	}
	return n, nil
}

func mapChildren(x *xmlNode) ([]*flow.Node, error) {
	var nodes []*flow.Node
	for i := range x.Children {
		n, err := mapElement(&x.Children[i])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// parseRetryAttrs reads the retry attributes shared by every element.
func parseRetryAttrs(x *xmlNode) *flow.RetryConfig {
	maxRetries := x.attr("max-retries")
	fallback := x.attr("fallback")
	if maxRetries == "" && fallback == "" {
		return nil
	}
	rc := &flow.RetryConfig{Backoff: flow.BackoffFixed, FallbackNodeID: fallback}
	rc.MaxRetries, _ = strconv.Atoi(maxRetries)
	if base := x.intAttr("backoff-base-ms"); base > 0 {
		rc.BackoffBase = time.Duration(base) * time.Millisecond
	}
	switch kind := flow.BackoffKind(x.attr("backoff")); kind {
	case flow.BackoffFixed, flow.BackoffLinear, flow.BackoffExponential:
		rc.Backoff = kind
	}
	return rc
}

// attrKey converts kebab-case attribute names to the camelCase config
// keys expressions use.
func attrKey(name string) string {
	parts := strings.Split(name, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// checkNodeIDs enforces ID uniqueness and input reference resolution
// across top-level nodes.
func checkNodeIDs(ast *flow.WorkflowAST) error {
	seen := map[string]bool{}
	var walk func(nodes []*flow.Node) error
	walk = func(nodes []*flow.Node) error {
		for _, n := range nodes {
			if seen[n.ID] {
				return fmt.Errorf("duplicate node id %q", n.ID)
			}
			seen[n.ID] = true
			for _, branch := range n.Branches {
				if err := walk(branch); err != nil {
					return err
				}
			}
			for _, c := range n.Cases {
				if err := walk(c.Then); err != nil {
					return err
				}
			}
			for _, group := range [][]*flow.Node{n.Then, n.Else, n.Body, n.Children} {
				if err := walk(group); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(ast.Nodes); err != nil {
		return err
	}
	for _, n := range ast.Nodes {
		if n.Input != "" && !seen[n.Input] {
			return fmt.Errorf("node %q references unknown input %q", n.ID, n.Input)
		}
	}
	return nil
}
