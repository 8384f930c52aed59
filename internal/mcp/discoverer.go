package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/corestack/agentcore/internal/corerr"
	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/pkg/models"
)

// ClientDiscoverer adapts a connected Client to registry.Discoverer, so its
// tools are enumerated and registered under "mcp:<server>/<tool>" by a
// registry's Discover call.
type ClientDiscoverer struct {
	client *Client
}

var _ registry.Discoverer = (*ClientDiscoverer)(nil)

// NewClientDiscoverer wraps client for registry discovery.
func NewClientDiscoverer(client *Client) *ClientDiscoverer {
	return &ClientDiscoverer{client: client}
}

// DiscoverersFromManager wraps every currently connected client in m as a
// registry.Discoverer, one per server since a Discoverer speaks for a
// single ServerName. Pass the result as registry.Config.Sources (or append
// it before calling Discover) to register MCP tools under "mcp:<server>/<tool>".
func DiscoverersFromManager(m *Manager) []registry.Discoverer {
	clients := m.Clients()
	discoverers := make([]registry.Discoverer, 0, len(clients))
	for _, client := range clients {
		discoverers = append(discoverers, NewClientDiscoverer(client))
	}
	return discoverers
}

// ServerName identifies the wrapped server, used to build qualified tool names.
func (d *ClientDiscoverer) ServerName() string {
	return d.client.Config().ID
}

// ListTools translates the server's current tool catalog into
// registry-shaped definitions and handlers that call through the client.
func (d *ClientDiscoverer) ListTools(ctx context.Context) ([]models.ToolDefinition, map[string]registry.Handler, error) {
	tools := d.client.Tools()
	defs := make([]models.ToolDefinition, 0, len(tools))
	handlers := make(map[string]registry.Handler, len(tools))

	for _, tool := range tools {
		params, schema, err := translateSchema(tool.InputSchema)
		if err != nil {
			return nil, nil, corerr.Wrap(corerr.CodeToolExecutionFail, fmt.Sprintf("mcp tool %q has an invalid input schema", tool.Name), err)
		}

		defs = append(defs, models.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Category:    "mcp",
			Parameters:  params,
		})
		handlers[tool.Name] = d.callHandler(tool.Name, schema)
	}

	return defs, handlers, nil
}

func (d *ClientDiscoverer) callHandler(toolName string, schema *jsonschema.Schema) registry.Handler {
	return func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		arguments := make(map[string]any, len(args))
		for k, v := range args {
			var decoded any
			if err := json.Unmarshal(v, &decoded); err != nil {
				return "", corerr.Wrap(corerr.CodeToolExecutionFail, fmt.Sprintf("argument %q is not valid JSON", k), err)
			}
			arguments[k] = decoded
		}

		if schema != nil {
			if err := schema.Validate(arguments); err != nil {
				return "", corerr.Wrap(corerr.CodeToolExecutionFail, fmt.Sprintf("arguments for %q failed schema validation", toolName), err)
			}
		}

		result, err := d.client.CallTool(ctx, toolName, arguments)
		if err != nil {
			return "", corerr.Wrap(corerr.CodeToolExecutionFail, fmt.Sprintf("mcp call to %q failed", toolName), err)
		}

		var out strings.Builder
		for i, content := range result.Content {
			if i > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(content.Text)
		}
		if result.IsError {
			return out.String(), fmt.Errorf("%s", out.String())
		}
		return out.String(), nil
	}
}

// translateSchema reads a JSON Schema's top-level "properties"/"required"
// into the registry's flat parameter shape for system-prompt display, and
// separately compiles the same schema for runtime argument validation.
func translateSchema(raw json.RawMessage) (map[string]models.ToolParameter, *jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	var doc struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, err
	}

	required := make(map[string]bool, len(doc.Required))
	for _, name := range doc.Required {
		required[name] = true
	}

	params := make(map[string]models.ToolParameter, len(doc.Properties))
	for name, prop := range doc.Properties {
		params[name] = models.ToolParameter{
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[name],
		}
	}

	compiler := jsonschema.NewCompiler()
	const resourceName = "mcp-tool-schema.json"
	if err := compiler.AddResource(resourceName, strings.NewReader(string(raw))); err != nil {
		return params, nil, err
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return params, nil, err
	}

	return params, schema, nil
}
