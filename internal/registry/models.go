package registry

import (
	"fmt"
	"time"

	"github.com/odata-gateway/go/internal/models"
)

// ToolDefaults are parameter defaults layered under caller input when a
// registered tool executes.
type ToolDefaults struct {
	QueryParameters map[string]string      `json:"query_parameters,omitempty"`
	RequestBody     map[string]interface{} `json:"request_body,omitempty"`
}

// PromptHints are free-form usage hints attached to a tool.
type PromptHints struct {
	Items []string `json:"items"`
}

// ToolDefinition is one registered tool as stored and returned. Records
// carry their own version, bumped on every update.
type ToolDefinition struct {
	Name          string                       `json:"name"`
	Description   string                       `json:"description"`
	ServiceConfig models.ServiceEndpointConfig `json:"service_config"`
	ReturnDirect  *bool                        `json:"return_direct,omitempty"`
	Defaults      ToolDefaults                 `json:"defaults"`
	PromptHints   PromptHints                  `json:"prompt_hints"`
	Enabled       bool                         `json:"enabled"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
	Version       int                          `json:"version"`
}

func (t *ToolDefinition) clone() *ToolDefinition {
	out := *t
	if t.ReturnDirect != nil {
		v := *t.ReturnDirect
		out.ReturnDirect = &v
	}
	out.Defaults = t.Defaults.clone()
	out.PromptHints = PromptHints{Items: append([]string(nil), t.PromptHints.Items...)}
	return &out
}

func (d ToolDefaults) clone() ToolDefaults {
	out := ToolDefaults{}
	if d.QueryParameters != nil {
		out.QueryParameters = make(map[string]string, len(d.QueryParameters))
		for k, v := range d.QueryParameters {
			out.QueryParameters[k] = v
		}
	}
	if d.RequestBody != nil {
		out.RequestBody = make(map[string]interface{}, len(d.RequestBody))
		for k, v := range d.RequestBody {
			out.RequestBody[k] = v
		}
	}
	return out
}

// CreateInput describes a tool to register. Enabled defaults to true when
// left nil.
type CreateInput struct {
	Name          string                       `json:"name"`
	Description   string                       `json:"description"`
	ServiceConfig models.ServiceEndpointConfig `json:"service_config"`
	ReturnDirect  *bool                        `json:"return_direct,omitempty"`
	Defaults      *ToolDefaults                `json:"defaults,omitempty"`
	PromptHints   *PromptHints                 `json:"prompt_hints,omitempty"`
	Enabled       *bool                        `json:"enabled,omitempty"`
}

// Validate enforces the naming and field constraints for new tools.
func (in CreateInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if len(in.Name) > 100 {
		return fmt.Errorf("tool name exceeds 100 characters")
	}
	if !isIdentifier(in.Name) {
		return fmt.Errorf("tool name %q must be alphanumeric with underscores", in.Name)
	}
	if in.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	if in.ServiceConfig.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if in.ServiceConfig.EntityName == "" {
		return fmt.Errorf("entity_name is required")
	}
	switch in.ServiceConfig.ODataVersion {
	case "v2", "v4":
	default:
		return fmt.Errorf("odata_version must be v2 or v4")
	}
	return nil
}

func (in CreateInput) enabled() bool {
	if in.Enabled == nil {
		return true
	}
	return *in.Enabled
}

func isIdentifier(name string) bool {
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}

// UpdateInput carries the fields to change on an existing tool. Nil fields
// are left untouched.
type UpdateInput struct {
	Description   *string                       `json:"description,omitempty"`
	ServiceConfig *models.ServiceEndpointConfig `json:"service_config,omitempty"`
	ReturnDirect  *bool                         `json:"return_direct,omitempty"`
	Defaults      *ToolDefaults                 `json:"defaults,omitempty"`
	PromptHints   *PromptHints                  `json:"prompt_hints,omitempty"`
	Enabled       *bool                         `json:"enabled,omitempty"`
}

// Stats summarizes the registry contents.
type Stats struct {
	TotalTools      int       `json:"total_tools"`
	EnabledTools    int       `json:"enabled_tools"`
	DisabledTools   int       `json:"disabled_tools"`
	LastUpdated     time.Time `json:"last_updated"`
	RegistryVersion int       `json:"registry_version"`
}

// Export is a point-in-time snapshot of the registry.
type Export struct {
	Version    int                        `json:"version"`
	ExportedAt time.Time                  `json:"exported_at"`
	Tools      map[string]*ToolDefinition `json:"tools"`
}

// ImportRequest is the bulk-load format.
type ImportRequest struct {
	Tools           map[string]CreateInput `json:"tools"`
	ReplaceExisting bool                   `json:"replace_existing"`
}

// document is the on-disk registry shape.
type document struct {
	Version   int                        `json:"version"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Tools     map[string]*ToolDefinition `json:"tools"`
}
