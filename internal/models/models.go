package models

// ServiceEndpointConfig identifies one remote OData operation surface.
// Immutable once constructed.
type ServiceEndpointConfig struct {
	ServiceName      string `json:"service_name" mapstructure:"service_name"`
	ServiceNamespace string `json:"service_namespace,omitempty" mapstructure:"service_namespace"`
	EntityName       string `json:"entity_name" mapstructure:"entity_name"`
	ODataVersion     string `json:"odata_version" mapstructure:"odata_version"` // "v2" or "v4"
	HTTPMethod       string `json:"http_method" mapstructure:"http_method"`
}

// SystemProfile is a static directory entry for one target SAP system.
// Loaded at startup, never mutated at runtime.
type SystemProfile struct {
	Hostname    string `json:"hostname" mapstructure:"hostname"`
	ClientID    string `json:"client_id" mapstructure:"client_id"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

// Credentials hold per-call basic auth. Never persisted; resolved from
// explicit arguments, else process-wide defaults.
type Credentials struct {
	Username string `json:"-"`
	Password string `json:"-"`
}

// IsSet reports whether both username and password are present.
func (c Credentials) IsSet() bool {
	return c.Username != "" && c.Password != ""
}

// CallRequest describes one generic API invocation.
type CallRequest struct {
	HTTPMethod      string
	Endpoint        ServiceEndpointConfig
	SystemID        string
	QueryParameters map[string]string
	RequestBody     map[string]interface{}
	Credentials     Credentials
}

// CallResult is the uniform envelope returned for every call, success or
// failure. Remote failures populate ErrorDetails instead of surfacing as
// errors.
type CallResult struct {
	RequestID        string                 `json:"request_id"`
	HTTPMethod       string                 `json:"http_method"`
	ServiceName      string                 `json:"service_name"`
	ServiceNamespace string                 `json:"service_namespace"`
	EntityName       string                 `json:"entity_name"`
	ODataVersion     string                 `json:"odata_version"`
	RequestURL       string                 `json:"request_url"`
	StatusCode       int                    `json:"status_code"`
	Success          bool                   `json:"success"`
	RawResponse      map[string]interface{} `json:"raw_response,omitempty"`
	RequestBody      map[string]interface{} `json:"request_body,omitempty"`
	QueryParameters  map[string]string      `json:"query_parameters,omitempty"`
	ResponseHeaders  map[string]string      `json:"response_headers,omitempty"`
	ExecutionTimeMs  int64                  `json:"execution_time_ms"`
	RecordCount      *int                   `json:"record_count,omitempty"`
	ErrorDetails     *string                `json:"error_details,omitempty"`
	Message          string                 `json:"message"`
}

// MetadataDocument is the raw protocol-description document for one
// endpoint, plus the entity-type property index parsed from it.
type MetadataDocument struct {
	SystemID     string              `json:"system_id"`
	ServicePath  string              `json:"service_path"`
	ODataVersion string              `json:"odata_version"`
	RawXML       string              `json:"raw_xml"`
	EntityTypes  map[string][]string `json:"entity_types"`
}
