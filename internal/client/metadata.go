package client

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"

	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/constants"
	"github.com/odata-gateway/go/internal/models"
	"github.com/odata-gateway/go/internal/transport"
)

// GetMetadata fetches the service's $metadata document, parsing the entity
// types and their properties out of it. Documents are cached under a short
// TTL keyed by host, service path and protocol version.
func (c *Client) GetMetadata(ctx context.Context) (*models.MetadataDocument, error) {
	key := transport.CacheKey(c.profile.Hostname, c.ServicePath(), c.endpoint.ODataVersion)
	if c.cache != nil {
		if doc, ok := c.cache.Get(key); ok {
			c.logger.Debug("metadata cache hit", zap.String("key", key))
			return doc, nil
		}
	}

	resp, err := c.Execute(ctx, constants.GET, c.ServiceURL()+"/"+constants.MetadataEndpoint, nil, nil)
	if err != nil {
		return nil, err
	}

	doc := &models.MetadataDocument{
		SystemID:     c.profile.Hostname,
		ServicePath:  c.ServicePath(),
		ODataVersion: c.endpoint.ODataVersion,
		RawXML:       string(resp.Body),
		EntityTypes:  parseEntityTypes(resp.Body),
	}
	if c.cache != nil {
		c.cache.Set(key, doc)
	}
	return doc, nil
}

// parseEntityTypes walks the metadata XML and indexes property names by
// entity type. Both schema namespace generations are accepted; elements
// from unrecognized namespaces are skipped.
func parseEntityTypes(raw []byte) map[string][]string {
	types := make(map[string][]string)
	decoder := xml.NewDecoder(bytes.NewReader(raw))

	var current string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Truncated or malformed documents yield whatever was
			// parsed so far.
			break
		}

		switch el := token.(type) {
		case xml.StartElement:
			if !isEdmNamespace(el.Name.Space) {
				continue
			}
			switch el.Name.Local {
			case "EntityType":
				if name := attrValue(el, "Name"); name != "" {
					current = name
					types[current] = []string{}
				}
			case "Property":
				if current == "" {
					continue
				}
				if name := attrValue(el, "Name"); name != "" {
					types[current] = append(types[current], name)
				}
			}
		case xml.EndElement:
			if el.Name.Local == "EntityType" && isEdmNamespace(el.Name.Space) {
				current = ""
			}
		}
	}
	return types
}

func isEdmNamespace(space string) bool {
	return space == constants.EdmNamespaceV4 || space == constants.EdmNamespaceV2
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}
