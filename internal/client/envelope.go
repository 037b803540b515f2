package client

import (
	"fmt"
	"strconv"

	"github.com/odata-gateway/go/internal/constants"
)

// EnvelopeKind identifies which wire shape a response body arrived in.
type EnvelopeKind int

const (
	// EnvelopeRaw is a body that matched no known OData envelope.
	EnvelopeRaw EnvelopeKind = iota
	// EnvelopeV4 is the {"value": [...]} shape, optionally with
	// @odata.count and @odata.nextLink annotations.
	EnvelopeV4
	// EnvelopeV2List is the {"d": {"results": [...]}} shape.
	EnvelopeV2List
	// EnvelopeV2Single is the {"d": {...}} shape wrapping one entity.
	EnvelopeV2Single
)

// Envelope is the parsed form of a response body. Consumers read the
// normalized accessors rather than branching on protocol version.
type Envelope struct {
	Kind     EnvelopeKind
	Value    []interface{}
	Single   map[string]interface{}
	Count    *int64
	NextLink string
	Raw      map[string]interface{}
}

// ParseEnvelope detects the wire shape of body and returns its tagged form.
// Detection is shape-driven so a v2 service answering without the "d"
// wrapper still round-trips as raw.
func ParseEnvelope(body map[string]interface{}) Envelope {
	if body == nil {
		return Envelope{Kind: EnvelopeRaw}
	}

	if d, ok := body["d"].(map[string]interface{}); ok {
		env := Envelope{Raw: body}
		if results, ok := d["results"].([]interface{}); ok {
			env.Kind = EnvelopeV2List
			env.Value = results
			if raw, ok := d["__count"]; ok {
				if n, ok := coerceCount(raw); ok {
					env.Count = &n
				}
			}
			if next, ok := d["__next"].(string); ok {
				env.NextLink = next
			}
			return env
		}
		env.Kind = EnvelopeV2Single
		env.Single = d
		return env
	}

	if results, ok := body["value"].([]interface{}); ok {
		env := Envelope{Kind: EnvelopeV4, Value: results, Raw: body}
		if raw, ok := body["@odata.count"]; ok {
			if n, ok := coerceCount(raw); ok {
				env.Count = &n
			}
		}
		if next, ok := body["@odata.nextLink"].(string); ok {
			env.NextLink = next
		}
		return env
	}

	return Envelope{Kind: EnvelopeRaw, Raw: body}
}

// Normalized renders the envelope in the v4 surface shape regardless of
// which generation produced it.
func (e Envelope) Normalized() map[string]interface{} {
	switch e.Kind {
	case EnvelopeV2List, EnvelopeV4:
		out := map[string]interface{}{"value": e.Value}
		if e.Count != nil {
			out["@odata.count"] = *e.Count
		}
		if e.NextLink != "" {
			out["@odata.nextLink"] = e.NextLink
		}
		return out
	case EnvelopeV2Single:
		return e.Single
	default:
		return e.Raw
	}
}

// RecordCount reports how many records the envelope carries, or nil when
// the shape has no collection semantics.
func (e Envelope) RecordCount() *int {
	switch e.Kind {
	case EnvelopeV2List, EnvelopeV4:
		n := len(e.Value)
		return &n
	case EnvelopeV2Single:
		n := 1
		return &n
	default:
		return nil
	}
}

func coerceCount(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// extractErrorMessage pulls a human-readable message out of an OData error
// document, handling both the v4 {"error": {...}} and v2 {"d": {"error":
// ...}} placements plus OAuth-style error_description fields. The second
// return reports whether an error document was present at all.
func extractErrorMessage(body map[string]interface{}) (string, bool) {
	if body == nil {
		return "", false
	}

	if errObj, ok := body["error"]; ok {
		return renderErrorObject(errObj), true
	}
	if d, ok := body["d"].(map[string]interface{}); ok {
		if errObj, ok := d["error"]; ok {
			return renderErrorObject(errObj), true
		}
	}
	if desc, ok := body["error_description"].(string); ok {
		return desc, true
	}
	return "", false
}

func renderErrorObject(errObj interface{}) string {
	obj, ok := errObj.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("%v", errObj)
	}

	message := renderErrorText(obj["message"])
	if inner, ok := obj["innererror"].(map[string]interface{}); ok {
		if detail := renderErrorText(inner["message"]); detail != "" && detail != message {
			if message != "" {
				message = message + ": " + detail
			} else {
				message = detail
			}
		}
	}
	if message == "" {
		if code, ok := obj["code"].(string); ok {
			message = code
		}
	}
	if message == "" {
		message = fmt.Sprintf("%v", obj)
	}
	return message
}

// renderErrorText handles both the plain-string v4 message and the v2
// {"lang": ..., "value": ...} message object.
func renderErrorText(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]interface{}:
		if value, ok := v["value"].(string); ok {
			return value
		}
		return ""
	default:
		return ""
	}
}

// sniffTextError scans a non-JSON success body for failure keywords. This
// is best effort: framework error pages report failures as HTML with a
// 200 status.
func sniffTextError(body string) (string, bool) {
	lower := toLowerASCII(body)
	for _, keyword := range constants.ErrorKeywords {
		if containsAny(lower, keyword) {
			return trimForDetail(body), true
		}
	}
	return "", false
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func trimForDetail(body string) string {
	const max = 500
	if len(body) > max {
		return body[:max]
	}
	return body
}
