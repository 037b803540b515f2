package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/constants"
	"github.com/odata-gateway/go/internal/models"
	"github.com/odata-gateway/go/internal/transport"
)

// Client talks to one OData service on one SAP system. It is cheap to
// construct; the expensive pieces (connection pool, metadata cache) are
// shared and injected.
type Client struct {
	profile  models.SystemProfile
	endpoint models.ServiceEndpointConfig
	creds    models.Credentials
	pool     *transport.Manager
	cache    *transport.MetadataCache
	logger   *zap.Logger
	timeout  time.Duration
}

// Options carries the shared infrastructure a Client borrows.
type Options struct {
	Pool    *transport.Manager
	Cache   *transport.MetadataCache
	Logger  *zap.Logger
	Timeout time.Duration
}

// New builds a client for one service endpoint. The endpoint's protocol
// version and service coordinates are validated up front so every later
// call can assume they are well formed.
func New(profile models.SystemProfile, endpoint models.ServiceEndpointConfig, creds models.Credentials, opts Options) (*Client, error) {
	if profile.Hostname == "" {
		return nil, newValidationError("system profile has no hostname")
	}
	if endpoint.ServiceName == "" {
		return nil, newValidationError("service name is required")
	}
	switch endpoint.ODataVersion {
	case constants.ODataV2:
	case constants.ODataV4:
		if endpoint.ServiceNamespace == "" {
			return nil, newValidationError("service namespace is required for OData v4 services")
		}
	default:
		return nil, newValidationError("unsupported OData version %q (expected %q or %q)",
			endpoint.ODataVersion, constants.ODataV2, constants.ODataV4)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultTimeout * time.Second
	}

	return &Client{
		profile:  profile,
		endpoint: endpoint,
		creds:    creds,
		pool:     opts.Pool,
		cache:    opts.Cache,
		logger:   logger.Named("client"),
		timeout:  timeout,
	}, nil
}

// ServicePath returns the version-specific path of the bound service,
// relative to the protocol base path.
func (c *Client) ServicePath() string {
	if c.endpoint.ODataVersion == constants.ODataV4 {
		return strings.Join([]string{
			c.endpoint.ServiceNamespace,
			constants.V4ServiceSegment,
			c.endpoint.ServiceName,
			constants.V4ServiceVersion,
		}, "/")
	}
	return c.endpoint.ServiceName
}

// ServiceURL returns the absolute root URL of the bound service.
func (c *Client) ServiceURL() string {
	base := constants.BasePathV2
	if c.endpoint.ODataVersion == constants.ODataV4 {
		base = constants.BasePathV4
	}
	return c.baseURL() + base + "/" + c.ServicePath()
}

// RequestURL returns the absolute URL for an entity set access. entityKey
// is a rendered key predicate such as ('42'), and suffix an optional
// navigation or system segment appended after it.
func (c *Client) RequestURL(entityName, entityKey, suffix string) string {
	u := c.ServiceURL()
	if entityName != "" {
		u += "/" + entityName
	}
	if entityKey != "" {
		u += entityKey
	}
	if suffix != "" {
		u += "/" + strings.TrimPrefix(suffix, "/")
	}
	return u
}

func (c *Client) baseURL() string {
	host := strings.TrimSuffix(c.profile.Hostname, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// Response is the raw outcome of a successful call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON decodes the response body as a JSON object.
func (r *Response) JSON() (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	return body, nil
}

// Envelope parses the response body into its tagged protocol shape.
func (r *Response) Envelope() Envelope {
	body, err := r.JSON()
	if err != nil {
		return Envelope{Kind: EnvelopeRaw}
	}
	return ParseEnvelope(body)
}

// Execute performs one OData call. Mutating verbs run the CSRF handshake
// first and carry its token and session cookies; every verb gets the
// tenant parameter and, on v2 reads, the JSON format parameter. Failures
// come back as *APIError, including errors the backend embedded in a
// 200 response.
func (c *Client) Execute(ctx context.Context, method, requestURL string, params map[string]string, body map[string]interface{}) (*Response, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !isSupportedMethod(method) {
		return nil, newValidationError("unsupported HTTP method %q", method)
	}

	var session *csrfSession
	if isMutating(method) {
		s, err := c.csrfHandshake(ctx, c.ServiceURL())
		if err != nil {
			return nil, err
		}
		session = s
	}

	return c.do(ctx, method, requestURL, params, body, session)
}

func (c *Client) do(ctx context.Context, method, requestURL string, params map[string]string, body map[string]interface{}, session *csrfSession) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, newValidationError("request body is not serializable: %v", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return nil, newValidationError("invalid request URL %q: %v", requestURL, err)
	}

	q := req.URL.Query()
	for name, value := range params {
		q.Set(name, value)
	}
	if c.profile.ClientID != "" && q.Get(constants.SAPClientParam) == "" {
		q.Set(constants.SAPClientParam, c.profile.ClientID)
	}
	if c.wantsFormatParam(method, req.URL) && q.Get(constants.QueryFormat) == "" {
		q.Set(constants.QueryFormat, "json")
	}
	req.URL.RawQuery = q.Encode()

	if strings.HasSuffix(req.URL.Path, constants.MetadataEndpoint) {
		req.Header.Set(constants.Accept, constants.ContentTypeXML)
	} else {
		req.Header.Set(constants.Accept, constants.ContentTypeJSON)
	}
	req.Header.Set(constants.UserAgent, constants.DefaultUserAgent)
	if body != nil {
		req.Header.Set(constants.ContentType, constants.ContentTypeJSON)
	}
	c.applyAuth(req)
	if session != nil {
		req.Header.Set(constants.CSRFTokenHeader, session.token)
		for _, cookie := range session.cookies {
			req.AddCookie(cookie)
		}
	}

	c.logger.Debug("executing request",
		zap.String("method", method),
		zap.String("url", req.URL.Redacted()))

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindServer, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("reading response body: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode, errorDetailFromBody(raw))
	}

	if apiErr := c.sniffEmbeddedError(req.URL.Path, resp, raw); apiErr != nil {
		return nil, apiErr
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: raw}, nil
}

// sniffEmbeddedError inspects a success response for a failure the backend
// reported with a 200 status. JSON bodies are checked for the protocol
// error document; XML, text and HTML bodies get a best-effort keyword
// scan. Metadata documents are exempt because they legitimately contain
// the scanned keywords.
func (c *Client) sniffEmbeddedError(requestPath string, resp *http.Response, raw []byte) *APIError {
	if len(raw) == 0 {
		return nil
	}
	contentType := resp.Header.Get(constants.ContentType)
	if strings.Contains(contentType, "json") {
		var body map[string]interface{}
		if json.Unmarshal(raw, &body) != nil {
			return nil
		}
		if message, found := extractErrorMessage(body); found {
			return classifyEmbedded(message)
		}
		return nil
	}
	if strings.HasSuffix(requestPath, constants.MetadataEndpoint) {
		return nil
	}
	if detail, found := sniffTextError(string(raw)); found {
		return &APIError{Kind: KindGeneric, StatusCode: resp.StatusCode,
			Message: "API returned error content with success status", Detail: detail}
	}
	return nil
}

// wantsFormatParam reports whether $format=json should be injected. Only
// v2 reads need it: v4 negotiates via Accept, metadata must stay XML, and
// mutating verbs reject system format options on some gateway releases.
func (c *Client) wantsFormatParam(method string, u *url.URL) bool {
	if c.endpoint.ODataVersion != constants.ODataV2 {
		return false
	}
	if isMutating(method) {
		return false
	}
	return !strings.HasSuffix(u.Path, constants.MetadataEndpoint) &&
		!strings.HasSuffix(u.Path, "/"+constants.QueryCount)
}

func (c *Client) applyAuth(req *http.Request) {
	if c.creds.IsSet() {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.pool != nil {
		return c.pool.Client()
	}
	return http.DefaultClient
}

func errorDetailFromBody(raw []byte) string {
	var body map[string]interface{}
	if json.Unmarshal(raw, &body) == nil {
		if message, found := extractErrorMessage(body); found {
			return message
		}
	}
	return trimForDetail(string(raw))
}

func wrapTransportError(err error) *APIError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &APIError{Kind: KindServer, StatusCode: 504,
			Message: "Request timed out: " + urlErr.Err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &APIError{Kind: KindServer, StatusCode: 504,
			Message: "Request timed out: " + err.Error()}
	}
	return &APIError{Kind: KindServer, StatusCode: 502,
		Message: "Connection failed: " + err.Error()}
}

func isSupportedMethod(method string) bool {
	switch method {
	case constants.GET, constants.POST, constants.PUT, constants.PATCH,
		constants.DELETE, constants.HEAD, constants.OPTIONS:
		return true
	}
	return false
}

func isMutating(method string) bool {
	switch method {
	case constants.POST, constants.PUT, constants.PATCH, constants.DELETE:
		return true
	}
	return false
}
