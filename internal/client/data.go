package client

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/constants"
)

// DataQuery shapes one read against the bound entity set.
type DataQuery struct {
	// EntityKey, when set, addresses a single entity by key.
	EntityKey map[string]interface{}
	// Navigation is an optional navigation segment appended after the key.
	Navigation string
	// Params are wire-form query options ($filter, $top, ...).
	Params map[string]string
	// NextLink, when set, continues a prior page and overrides the other
	// addressing fields. Relative links resolve against the service root.
	NextLink string
}

// GetData reads from the bound entity set and returns the body normalized
// to the v4 surface shape.
func (c *Client) GetData(ctx context.Context, query DataQuery) (map[string]interface{}, error) {
	requestURL := c.resolveQueryURL(query)

	resp, err := c.Execute(ctx, constants.GET, requestURL, query.Params, nil)
	if err != nil {
		return nil, err
	}
	return resp.Envelope().Normalized(), nil
}

// FetchAll reads every page of the bound entity set. Server pagination
// links are followed when present; v2 services that answer without one
// are walked with $skip/$top against the total count. maxPages caps the
// walk; zero means unbounded.
func (c *Client) FetchAll(ctx context.Context, params map[string]string, maxPages int) ([]interface{}, error) {
	total, err := c.GetEntityCount(ctx, params[constants.QueryFilter])
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	var records []interface{}
	var nextLink string

	for page := 0; ; page++ {
		if maxPages > 0 && page >= maxPages {
			c.logger.Warn("pagination walk hit page cap",
				zap.Int("max_pages", maxPages),
				zap.Int("records", len(records)))
			break
		}

		query := DataQuery{Params: params}
		switch {
		case nextLink != "":
			// Continuation links carry their own query options.
			query = DataQuery{NextLink: nextLink}
		case len(records) > 0:
			query.Params = withSkipWindow(params, len(records))
		}

		resp, err := c.Execute(ctx, constants.GET, c.resolveQueryURL(query), query.Params, nil)
		if err != nil {
			return nil, err
		}

		env := resp.Envelope()
		if len(env.Value) == 0 {
			break
		}
		records = append(records, env.Value...)

		nextLink = env.NextLink
		if nextLink == "" {
			if c.endpoint.ODataVersion == constants.ODataV2 && int64(len(records)) < total {
				continue
			}
			break
		}
	}
	return records, nil
}

func withSkipWindow(params map[string]string, skip int) map[string]string {
	out := make(map[string]string, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	out[constants.QuerySkip] = strconv.Itoa(skip)
	out[constants.QueryTop] = strconv.Itoa(constants.DefaultPageSize)
	return out
}

func (c *Client) resolveQueryURL(query DataQuery) string {
	if query.NextLink != "" {
		if strings.HasPrefix(query.NextLink, "http://") || strings.HasPrefix(query.NextLink, "https://") {
			return query.NextLink
		}
		return c.ServiceURL() + "/" + strings.TrimPrefix(query.NextLink, "/")
	}
	return c.RequestURL(c.endpoint.EntityName, BuildEntityKey(query.EntityKey), query.Navigation)
}

// GetEntityCount returns the number of entities matching filter (which may
// be empty). The $count endpoint answers with a plain-text integer; v2
// systems that reject it fall back to an inline-count probe.
func (c *Client) GetEntityCount(ctx context.Context, filter string) (int64, error) {
	params := map[string]string{}
	if filter != "" {
		params[constants.QueryFilter] = filter
	}

	countURL := c.RequestURL(c.endpoint.EntityName, "", constants.QueryCount)
	resp, err := c.Execute(ctx, constants.GET, countURL, params, nil)
	if err == nil {
		if n, perr := strconv.ParseInt(strings.TrimSpace(string(resp.Body)), 10, 64); perr == nil {
			return n, nil
		}
		err = &APIError{Kind: KindGeneric, StatusCode: resp.StatusCode,
			Message: "count endpoint returned a non-numeric body"}
	}

	if c.endpoint.ODataVersion != constants.ODataV2 {
		return 0, err
	}

	c.logger.Debug("count endpoint failed, probing with inline count", zap.Error(err))

	probeParams := map[string]string{
		constants.QueryInlineCount: "allpages",
		constants.QueryTop:         "1",
	}
	if filter != "" {
		probeParams[constants.QueryFilter] = filter
	}
	probeURL := c.RequestURL(c.endpoint.EntityName, "", "")
	probeResp, probeErr := c.Execute(ctx, constants.GET, probeURL, probeParams, nil)
	if probeErr != nil {
		return 0, probeErr
	}

	env := probeResp.Envelope()
	if env.Count != nil {
		return *env.Count, nil
	}
	return int64(len(env.Value)), nil
}
