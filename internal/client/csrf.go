package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/constants"
)

// csrfSession is the outcome of one token handshake: the token itself plus
// the session cookies that scope it. Sessions are per-call and never cached.
type csrfSession struct {
	token   string
	cookies []*http.Cookie
}

// csrfHandshake obtains a CSRF token before a mutating call. The metadata
// document is probed first because it answers the token fetch on every
// SAP gateway release; the service root gets exactly one fallback attempt
// before the failure is surfaced.
func (c *Client) csrfHandshake(ctx context.Context, serviceURL string) (*csrfSession, error) {
	primary := serviceURL + "/" + constants.MetadataEndpoint
	session, primaryErr := c.fetchCSRFToken(ctx, primary)
	if primaryErr == nil {
		return session, nil
	}

	c.logger.Debug("csrf token fetch falling back to service root",
		zap.String("service_url", serviceURL),
		zap.Error(primaryErr))

	session, fallbackErr := c.fetchCSRFToken(ctx, serviceURL+"/")
	if fallbackErr == nil {
		return session, nil
	}

	// Both probes failed. An authorization rejection on the metadata probe
	// outranks whatever the fallback produced; otherwise surface whichever
	// error carries a specific classification.
	if ErrorKindOf(primaryErr) == KindAuthorization {
		return nil, primaryErr
	}
	if ErrorKindOf(fallbackErr) != KindGeneric {
		return nil, fallbackErr
	}
	if ErrorKindOf(primaryErr) != KindGeneric {
		return nil, primaryErr
	}
	return nil, fallbackErr
}

func (c *Client) fetchCSRFToken(ctx context.Context, target string) (*csrfSession, error) {
	req, err := http.NewRequestWithContext(ctx, constants.GET, target, nil)
	if err != nil {
		return nil, &APIError{Kind: KindGeneric, Message: fmt.Sprintf("CSRF token request failed: %v", err)}
	}
	req.Header.Set(constants.CSRFTokenHeader, constants.CSRFTokenFetch)
	req.Header.Set(constants.Accept, constants.ContentTypeJSON)
	req.Header.Set(constants.UserAgent, constants.DefaultUserAgent)
	c.applyAuth(req)
	c.applyClientParam(req.URL)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == 403 {
		return nil, classifyStatus(403, "CSRF token fetch rejected")
	}
	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode, "CSRF token fetch failed")
	}

	token := resp.Header.Get(constants.CSRFTokenHeader)
	if token == "" || token == constants.CSRFTokenFetch {
		return nil, &APIError{Kind: KindGeneric, StatusCode: resp.StatusCode,
			Message: "CSRF token missing from handshake response"}
	}

	return &csrfSession{token: token, cookies: resp.Cookies()}, nil
}

func (c *Client) applyClientParam(u *url.URL) {
	if c.profile.ClientID == "" {
		return
	}
	q := u.Query()
	if q.Get(constants.SAPClientParam) == "" {
		q.Set(constants.SAPClientParam, c.profile.ClientID)
		u.RawQuery = q.Encode()
	}
}
