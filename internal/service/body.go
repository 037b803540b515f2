package service

import (
	"fmt"
	"strings"

	"github.com/odata-gateway/go/internal/constants"
)

// likelyDecimalPatterns match field names that typically carry Edm.Decimal
// values on SAP services.
var likelyDecimalPatterns = []string{
	"amount", "price", "cost", "quantity", "qty", "rate",
	"percent", "discount", "tax", "total", "net", "gross",
}

// PrepareRequestBody returns the body ready for the wire. OData v2 encodes
// Edm.Decimal values as JSON strings, so numeric values in fields that look
// like decimals are stringified for v2 payloads. Nested objects and arrays
// are handled recursively; v4 bodies pass through untouched.
func PrepareRequestBody(body map[string]interface{}, version string) map[string]interface{} {
	if body == nil || version != constants.ODataV2 {
		return body
	}
	return coerceDecimalFields(body)
}

func coerceDecimalFields(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if isLikelyDecimalField(key) {
			out[key] = stringifyNumber(value)
			continue
		}
		out[key] = coerceDecimalValue(value)
	}
	return out
}

func coerceDecimalValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return coerceDecimalFields(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = coerceDecimalValue(item)
		}
		return out
	default:
		return value
	}
}

// stringifyNumber renders numeric values as strings, preserving whole
// numbers without a fractional part. Non-numeric values pass through.
func stringifyNumber(value interface{}) interface{} {
	switch v := value.(type) {
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%.0f", v)
		}
		return fmt.Sprintf("%g", v)
	case float32:
		return fmt.Sprintf("%.6g", float64(v))
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return value
	}
}

func isLikelyDecimalField(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range likelyDecimalPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
