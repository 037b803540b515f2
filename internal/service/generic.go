package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/client"
	"github.com/odata-gateway/go/internal/config"
	"github.com/odata-gateway/go/internal/constants"
	"github.com/odata-gateway/go/internal/models"
	"github.com/odata-gateway/go/internal/transport"
)

// Orchestrator executes generic API calls against configured SAP systems.
// It owns nothing heavyweight itself; the pool and metadata cache are
// shared across every client it spawns.
type Orchestrator struct {
	cfg    *config.Config
	pool   *transport.Manager
	cache  *transport.MetadataCache
	logger *zap.Logger
}

// NewOrchestrator wires an orchestrator against the given configuration.
func NewOrchestrator(cfg *config.Config, pool *transport.Manager, cache *transport.MetadataCache, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		pool:   pool,
		cache:  cache,
		logger: logger.Named("orchestrator"),
	}
}

// Call runs one generic API invocation end to end: validation, parameter
// transformation, protocol execution, and result shaping. Bad input fails
// fast with an error. Remote failures do NOT return an error: they come
// back as a CallResult with Success false, so callers always have the full
// call context for reporting.
func (o *Orchestrator) Call(ctx context.Context, req models.CallRequest) (*models.CallResult, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := o.logger.With(zap.String("request_id", requestID))

	method := strings.ToUpper(strings.TrimSpace(req.HTTPMethod))
	if err := validateRequest(method, req); err != nil {
		return nil, err
	}

	systemID := req.SystemID
	if systemID == "" {
		systemID = o.cfg.DefaultSystemID
	}
	profile, err := o.cfg.System(systemID)
	if err != nil {
		return nil, &client.APIError{Kind: client.KindValidation, StatusCode: 400, Message: err.Error()}
	}

	creds := req.Credentials
	if !creds.IsSet() {
		creds = o.cfg.DefaultCredentials()
	}

	if req.Endpoint.ServiceNamespace == "" {
		req.Endpoint.ServiceNamespace = req.Endpoint.ServiceName
	}

	c, err := client.New(profile, req.Endpoint, creds, client.Options{
		Pool:    o.pool,
		Cache:   o.cache,
		Logger:  o.logger,
		Timeout: time.Duration(o.cfg.RequestTimeout) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	params := ToWireParams(req.QueryParameters)
	mutating := method != constants.GET && method != constants.HEAD && method != constants.OPTIONS
	if mutating {
		var stripped []string
		params, stripped = StripForMutation(params)
		for _, name := range stripped {
			log.Warn("dropping query option for mutating request",
				zap.String("parameter", name),
				zap.String("method", method))
		}
	}
	body := PrepareRequestBody(req.RequestBody, req.Endpoint.ODataVersion)

	requestURL := c.RequestURL(req.Endpoint.EntityName, "", "")
	result := &models.CallResult{
		RequestID:        requestID,
		HTTPMethod:       method,
		ServiceName:      req.Endpoint.ServiceName,
		ServiceNamespace: req.Endpoint.ServiceNamespace,
		EntityName:       req.Endpoint.EntityName,
		ODataVersion:     req.Endpoint.ODataVersion,
		RequestURL:       requestURL,
		RequestBody:      req.RequestBody,
		QueryParameters:  ToFriendlyParams(finalQueryParams(params, profile.ClientID, req.Endpoint.ODataVersion, mutating)),
	}

	callCtx := ctx
	if o.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.CallTimeout)*time.Second)
		defer cancel()
	}

	log.Info("executing generic call",
		zap.String("method", method),
		zap.String("system", systemID),
		zap.String("service", req.Endpoint.ServiceName),
		zap.String("entity", req.Endpoint.EntityName))

	resp, err := c.Execute(callCtx, method, requestURL, params, body)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	if err != nil {
		detail := err.Error()
		result.Success = false
		result.StatusCode = client.StatusCodeOf(err)
		result.ErrorDetails = &detail
		result.Message = failureMessage(detail)
		log.Warn("generic call failed",
			zap.Int("status", result.StatusCode),
			zap.String("error_kind", client.ErrorKindOf(err).String()),
			zap.Error(err))
		return result, nil
	}

	env := resp.Envelope()
	result.Success = true
	result.StatusCode = resp.StatusCode
	result.RawResponse = env.Normalized()
	result.ResponseHeaders = flattenHeaders(resp.Headers)
	if method == constants.GET {
		result.RecordCount = env.RecordCount()
	}
	result.Message = successMessage(method, result.RecordCount)

	log.Info("generic call completed",
		zap.Int("status", result.StatusCode),
		zap.Int64("elapsed_ms", result.ExecutionTimeMs))
	return result, nil
}

func validateRequest(method string, req models.CallRequest) error {
	bad := func(format string, args ...interface{}) error {
		return &client.APIError{Kind: client.KindValidation, StatusCode: 400,
			Message: "Invalid request: " + fmt.Sprintf(format, args...)}
	}
	switch method {
	case constants.GET, constants.POST, constants.PUT, constants.PATCH,
		constants.DELETE, constants.HEAD, constants.OPTIONS:
	case "":
		return bad("http_method is required")
	default:
		return bad("unsupported http_method %q", method)
	}
	if req.Endpoint.ServiceName == "" {
		return bad("service_name is required")
	}
	if req.Endpoint.EntityName == "" {
		return bad("entity_name is required")
	}
	switch req.Endpoint.ODataVersion {
	case constants.ODataV2, constants.ODataV4:
	default:
		return bad("odata_version must be %q or %q", constants.ODataV2, constants.ODataV4)
	}
	if req.RequestBody != nil && (method == constants.GET || method == constants.DELETE) {
		return bad("request_body is not allowed for %s", method)
	}
	return nil
}

// finalQueryParams reproduces the parameters the protocol client injects
// on the wire so the echoed set matches what was actually sent.
func finalQueryParams(params map[string]string, clientID, version string, mutating bool) map[string]string {
	out := make(map[string]string, len(params)+2)
	for name, value := range params {
		out[name] = value
	}
	if clientID != "" && out[constants.SAPClientParam] == "" {
		out[constants.SAPClientParam] = clientID
	}
	if version == constants.ODataV2 && !mutating && out[constants.QueryFormat] == "" {
		out[constants.QueryFormat] = "json"
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// flattenHeaders converts response headers to a single-valued map for the
// result envelope. Session cookies never leave the orchestrator.
func flattenHeaders(headers map[string][]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if strings.EqualFold(name, constants.SetCookie) {
			continue
		}
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

