package service

import (
	"strings"

	"github.com/odata-gateway/go/internal/constants"
)

// ToWireParams maps caller-facing query parameter names to their system
// query option form: "filter" becomes "$filter". Names already in wire
// form and names outside the known set pass through unchanged, so custom
// SAP parameters survive the transform.
func ToWireParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for name, value := range params {
		if wire, ok := constants.LogicalQueryOptions[strings.ToLower(name)]; ok {
			out[wire] = value
			continue
		}
		out[name] = value
	}
	return out
}

// ToFriendlyParams is the inverse of ToWireParams, rendering wire-form
// names back to their caller-facing form for result reporting.
func ToFriendlyParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	inverse := make(map[string]string, len(constants.LogicalQueryOptions))
	for logical, wire := range constants.LogicalQueryOptions {
		inverse[wire] = logical
	}
	out := make(map[string]string, len(params))
	for name, value := range params {
		if logical, ok := inverse[name]; ok {
			out[logical] = value
			continue
		}
		out[name] = value
	}
	return out
}

// StripForMutation removes system query options from the parameter set
// and reports which names were dropped so the caller can log them.
// Mutating verbs reject $-prefixed options on SAP gateways; the tenant
// parameter and other plain names are kept.
func StripForMutation(params map[string]string) (map[string]string, []string) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(params))
	var stripped []string
	for name, value := range params {
		if strings.HasPrefix(name, "$") {
			stripped = append(stripped, name)
			continue
		}
		out[name] = value
	}
	if len(out) == 0 {
		out = nil
	}
	return out, stripped
}
