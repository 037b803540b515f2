package service

import (
	"fmt"

	"github.com/odata-gateway/go/internal/constants"
)

// successMessage renders the human-readable summary for a completed call.
func successMessage(method string, recordCount *int) string {
	switch method {
	case constants.GET:
		if recordCount != nil {
			return fmt.Sprintf("Retrieved %d record(s) successfully", *recordCount)
		}
		return "Request completed successfully"
	case constants.POST:
		return "Record created successfully"
	case constants.PUT, constants.PATCH:
		return "Record updated successfully"
	case constants.DELETE:
		return "Record deleted successfully"
	default:
		return "Request completed successfully"
	}
}

func failureMessage(detail string) string {
	if detail == "" {
		return "API call failed"
	}
	return "API call failed: " + detail
}
