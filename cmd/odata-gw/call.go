package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odata-gateway/go/internal/models"
)

func newCallCmd(a *app) *cobra.Command {
	var (
		method    string
		system    string
		service   string
		namespace string
		entity    string
		version   string
		params    []string
		bodyArg   string
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Execute a generic OData call against a configured system",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queryParams, err := parseParams(params)
			if err != nil {
				return err
			}
			body, err := parseBody(bodyArg)
			if err != nil {
				return err
			}

			result, err := a.orch.Call(cmd.Context(), models.CallRequest{
				HTTPMethod: method,
				SystemID:   system,
				Endpoint: models.ServiceEndpointConfig{
					ServiceName:      service,
					ServiceNamespace: namespace,
					EntityName:       entity,
					ODataVersion:     version,
				},
				QueryParameters: queryParams,
				RequestBody:     body,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&system, "system", "", "target system id (default from config)")
	cmd.Flags().StringVar(&service, "service", "", "OData service name")
	cmd.Flags().StringVar(&namespace, "namespace", "", "service namespace (v4 only)")
	cmd.Flags().StringVar(&entity, "entity", "", "entity set name")
	cmd.Flags().StringVar(&version, "odata-version", "v2", "protocol version: v2 or v4")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter name=value (repeatable)")
	cmd.Flags().StringVarP(&bodyArg, "body", "d", "", "JSON request body, or @file to read from disk")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected name=value)", pair)
		}
		out[name] = value
	}
	return out, nil
}

func parseBody(arg string) (map[string]interface{}, error) {
	if arg == "" {
		return nil, nil
	}
	raw := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		var err error
		raw, err = os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("reading body file: %w", err)
		}
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parsing request body: %w", err)
	}
	return body, nil
}
