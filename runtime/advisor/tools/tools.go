// Package tools declares the advisor tool catalog and the registry that
// serves tool schemas to prompt assembly and provider encoding. Schemas are
// declarative; RenderDefinition produces the provider-facing JSON-schema
// document and NewRegistry compiles every rendered schema so malformed
// declarations fail at startup, not mid-stream.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/moneywise-vn/advisor/runtime/advisor/model"
)

// Ident is the canonical tool identifier advertised to providers.
type Ident string

// String returns the identifier as a plain string.
func (i Ident) String() string { return string(i) }

// Kind partitions tools by how the UI consumes their calls.
type Kind string

const (
	// KindChat tools produce in-conversation actions (budgets, plans).
	KindChat Kind = "chat"
	// KindComponent tools render an interactive UI component.
	KindComponent Kind = "component"
	// KindExternal tools open a standalone tool screen.
	KindExternal Kind = "external"
)

// FieldType is a JSON-schema primitive or composite type name.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

type (
	// Field describes one parameter in a tool schema. Object fields recurse
	// through Properties, array fields through Items.
	Field struct {
		Type        FieldType
		Description string
		Required    bool
		Enum        []string
		Items       *Field
		Properties  map[string]Field
	}

	// Schema is the declarative parameter schema of a tool. The rendered
	// form is always a top-level JSON-schema object.
	Schema struct {
		Properties map[string]Field
	}

	// Spec is a complete tool declaration.
	Spec struct {
		Name        Ident
		Description string
		Kind        Kind
		Params      Schema
	}

	// Registry holds the registered tool specs. Immutable after NewRegistry.
	Registry struct {
		specs    map[Ident]Spec
		compiled map[Ident]*jsonschema.Schema
		order    []Ident
	}
)

// ErrUnknownTool is returned when a lookup names a tool that was never
// registered.
var ErrUnknownTool = errors.New("tools: unknown tool")

// NewRegistry builds a registry from the given specs. Registering the same
// name twice is allowed only when the declarations match exactly; a
// conflicting duplicate is a startup error. Every rendered schema is compiled
// as JSON Schema before the registry is returned.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs:    make(map[Ident]Spec, len(specs)),
		compiled: make(map[Ident]*jsonschema.Schema, len(specs)),
	}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("tools: spec with empty name")
		}
		if spec.Description == "" {
			return nil, fmt.Errorf("tools: tool %q missing description", spec.Name)
		}
		if prev, ok := r.specs[spec.Name]; ok {
			if !reflect.DeepEqual(prev, spec) {
				return nil, fmt.Errorf("tools: conflicting registration for %q", spec.Name)
			}
			continue
		}
		schema, err := compileSchema(spec)
		if err != nil {
			return nil, fmt.Errorf("tools: tool %q schema: %w", spec.Name, err)
		}
		r.specs[spec.Name] = spec
		r.compiled[spec.Name] = schema
		r.order = append(r.order, spec.Name)
	}
	return r, nil
}

// ValidateArgs checks parsed arguments against the tool's compiled schema.
// A validation failure means the call is unusable, which callers report as a
// per-call error, never a turn failure.
func (r *Registry) ValidateArgs(name Ident, args map[string]any) error {
	schema, ok := r.compiled[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	doc, err := roundTrip(args)
	if err != nil {
		return fmt.Errorf("tools: normalize arguments for %q: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tools: arguments for %q: %w", name, err)
	}
	return nil
}

// roundTrip re-encodes a Go map through JSON so the validator sees the same
// value shapes it would for a decoded document.
func roundTrip(args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Describe returns the Spec registered under name.
func (r *Registry) Describe(name Ident) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// List returns the Specs for the given names, preserving registration order.
// Unknown names are skipped.
func (r *Registry) List(names []Ident) []Spec {
	want := make(map[Ident]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]Spec, 0, len(names))
	for _, n := range r.order {
		if want[n] {
			out = append(out, r.specs[n])
		}
	}
	return out
}

// Definitions renders the provider-facing tool definitions for the given
// names, preserving registration order.
func (r *Registry) Definitions(names []Ident) []*model.ToolDefinition {
	specs := r.List(names)
	defs := make([]*model.ToolDefinition, 0, len(specs))
	for _, spec := range specs {
		defs = append(defs, RenderDefinition(spec))
	}
	return defs
}

// RenderDefinition produces the provider-facing definition of a tool. The
// required list of every object level is preserved exactly as declared.
func RenderDefinition(spec Spec) *model.ToolDefinition {
	return &model.ToolDefinition{
		Name:        string(spec.Name),
		Description: spec.Description,
		InputSchema: renderObject(spec.Params.Properties),
	}
}

func renderObject(props map[string]Field) map[string]any {
	rendered := make(map[string]any, len(props))
	var required []string
	for _, name := range sortedKeys(props) {
		f := props[name]
		rendered[name] = renderField(f)
		if f.Required {
			required = append(required, name)
		}
	}
	obj := map[string]any{
		"type":       "object",
		"properties": rendered,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	return obj
}

func renderField(f Field) map[string]any {
	out := map[string]any{"type": string(f.Type)}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if len(f.Enum) > 0 {
		enum := make([]any, len(f.Enum))
		for i, v := range f.Enum {
			enum[i] = v
		}
		out["enum"] = enum
	}
	switch f.Type {
	case TypeObject:
		if len(f.Properties) > 0 {
			nested := renderObject(f.Properties)
			out["properties"] = nested["properties"]
			if req, ok := nested["required"]; ok {
				out["required"] = req
			}
		}
	case TypeArray:
		if f.Items != nil {
			out["items"] = renderField(*f.Items)
		}
	}
	return out
}

func sortedKeys(props map[string]Field) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compileSchema(spec Spec) (*jsonschema.Schema, error) {
	data, err := json.Marshal(renderObject(spec.Params.Properties))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(data, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
