// Package tools implements the built-in tool sandboxes the Tool Router can
// dispatch to: sql_query, read_file, write_file, vector_search, and
// vector_manage. Every sandbox validates its arguments against a JSON Schema
// before touching any resource, and every resource access still passes
// through the Policy Engine — the registry only decides which Go function
// runs, never whether it is permitted to.
package tools

import (
	"context"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/domekit-run/domekit/internal/domekit/message"
)

// Tool is the interface every built-in sandbox implements.
type Tool interface {
	// Definition returns the model-facing tool definition: name,
	// description, and JSON Schema parameter specification. Included in
	// every completion request's Tools slice.
	Definition() message.ToolDefinition

	// Execute runs the tool with JSON-decoded arguments and returns a
	// result string for the model, or an error. ctx carries the request's
	// deadline and the per-tool soft deadline set by the router.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds every registered built-in tool and validates arguments
// against each tool's declared JSON Schema before dispatch.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// New returns an empty Registry ready for tool registration.
func New() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds t to the registry, compiling its declared parameter schema.
// It panics if a tool with the same name is already registered or its schema
// fails to compile — both indicate a programming error in the registration
// sequence, not a runtime condition.
func (r *Registry) Register(t Tool) {
	def := t.Definition()
	name := def.Function.Name
	if _, dup := r.tools[name]; dup {
		panic("tools: duplicate tool registration: " + name)
	}

	schema, err := compileSchema(name, def.Function.Parameters)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %q: %v", name, err))
	}

	r.tools[name] = t
	r.schemas[name] = schema
}

func compileSchema(name string, parameters interface{}) (*jsonschema.Schema, error) {
	if parameters == nil {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	resourceName := name + ".json"
	if err := c.AddResource(resourceName, toJSONReader(parameters)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resourceName)
}

// Has reports whether name is a registered built-in tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Get returns the Tool registered under name, or nil when not found.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Definitions returns model-facing tool definitions for every registered
// tool. Tools are kept in a map, so the order of the result is not defined.
func (r *Registry) Definitions() []message.ToolDefinition {
	defs := make([]message.ToolDefinition, 0, len(r.tools))
	for name := range r.tools {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Validate checks args against name's declared JSON Schema. A tool declared
// with no schema accepts any arguments.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	schema, ok := r.schemas[name]
	if !ok || schema == nil {
		return nil
	}
	if err := schema.ValidateInterface(args); err != nil {
		return fmt.Errorf("arguments for tool %q: %w", name, err)
	}
	return nil
}
