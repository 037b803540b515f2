package constants

// OData protocol versions supported by the gateway
const (
	ODataV2 = "v2"
	ODataV4 = "v4"
)

// Base paths for SAP OData services, by protocol version
const (
	BasePathV2 = "/sap/opu/odata/sap"
	BasePathV4 = "/sap/opu/odata4/sap"
)

// OData V4 service path segments
// Full pattern: {namespace}/srvd_a2x/sap/{service_name}/0001
const (
	V4ServiceSegment = "srvd_a2x/sap"
	V4ServiceVersion = "0001"
)

// OData XML metadata namespaces
const (
	EdmNamespaceV4 = "http://docs.oasis-open.org/odata/ns/edm"
	EdmNamespaceV2 = "http://schemas.microsoft.com/ado/2008/09/edm"
	EdmxNamespace  = "http://schemas.microsoft.com/ado/2007/06/edmx"
)

// HTTP methods supported by OData
const (
	GET     = "GET"
	POST    = "POST"
	PUT     = "PUT"
	PATCH   = "PATCH"
	DELETE  = "DELETE"
	HEAD    = "HEAD"
	OPTIONS = "OPTIONS"
)

// OData system query options
const (
	QueryFilter      = "$filter"
	QuerySelect      = "$select"
	QueryExpand      = "$expand"
	QueryOrderBy     = "$orderby"
	QueryTop         = "$top"
	QuerySkip        = "$skip"
	QueryCount       = "$count"
	QuerySearch      = "$search"
	QueryFormat      = "$format"
	QueryInlineCount = "$inlinecount"
)

// LogicalQueryOptions maps caller-facing parameter names to their OData
// system query option form. Callers pass "filter"; the wire carries "$filter".
var LogicalQueryOptions = map[string]string{
	"filter":      QueryFilter,
	"select":      QuerySelect,
	"expand":      QueryExpand,
	"orderby":     QueryOrderBy,
	"top":         QueryTop,
	"skip":        QuerySkip,
	"count":       QueryCount,
	"search":      QuerySearch,
	"format":      QueryFormat,
	"inlinecount": QueryInlineCount,
}

// SAP tenant/client query parameter, always injected
const SAPClientParam = "sap-client"

// CSRF token headers (SAP-specific)
const (
	CSRFTokenHeader = "X-CSRF-Token"
	CSRFTokenFetch  = "Fetch"
)

// HTTP headers
const (
	ContentType = "Content-Type"
	Accept      = "Accept"
	UserAgent   = "User-Agent"
	SetCookie   = "Set-Cookie"
)

// Content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeXML  = "application/xml"
)

// Metadata endpoint suffix
const MetadataEndpoint = "$metadata"

// ErrorKeywords are scanned in non-JSON 200 responses as a best-effort
// signal that the remote system embedded a failure in a success status.
var ErrorKeywords = []string{
	"error",
	"exception",
	"not found",
	"service unavailable",
	"internal server error",
}

// Default values
const (
	DefaultUserAgent        = "OData-Gateway/1.0 (Go)"
	DefaultTimeout          = 30  // seconds, per transport call
	DefaultCallTimeout      = 120 // seconds, end-to-end orchestrator ceiling
	DefaultMetadataCacheTTL = 10  // seconds
	DefaultMaxConnections   = 20
	DefaultMaxIdleConns     = 10
	DefaultIdleConnTimeout  = 5 // seconds
	DefaultPageSize         = 1000
	DefaultBackupRetention  = 10
)
