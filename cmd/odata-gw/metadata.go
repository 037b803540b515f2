package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odata-gateway/go/internal/client"
	"github.com/odata-gateway/go/internal/models"
)

func (a *app) newClient(system string, endpoint models.ServiceEndpointConfig) (*client.Client, error) {
	if system == "" {
		system = a.cfg.DefaultSystemID
	}
	profile, err := a.cfg.System(system)
	if err != nil {
		return nil, err
	}
	if endpoint.ServiceNamespace == "" {
		endpoint.ServiceNamespace = endpoint.ServiceName
	}
	return client.New(profile, endpoint, a.cfg.DefaultCredentials(), client.Options{
		Pool:    a.pool,
		Cache:   a.cache,
		Logger:  a.logger,
		Timeout: time.Duration(a.cfg.RequestTimeout) * time.Second,
	})
}

func newMetadataCmd(a *app) *cobra.Command {
	var (
		system    string
		service   string
		namespace string
		version   string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Fetch and summarize a service's metadata document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.newClient(system, models.ServiceEndpointConfig{
				ServiceName:      service,
				ServiceNamespace: namespace,
				ODataVersion:     version,
			})
			if err != nil {
				return err
			}

			doc, err := c.GetMetadata(cmd.Context())
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), doc.RawXML)
				return nil
			}
			return printJSON(cmd, map[string]interface{}{
				"service_path":  doc.ServicePath,
				"odata_version": doc.ODataVersion,
				"entity_types":  doc.EntityTypes,
			})
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "target system id")
	cmd.Flags().StringVar(&service, "service", "", "OData service name")
	cmd.Flags().StringVar(&namespace, "namespace", "", "service namespace (v4 only)")
	cmd.Flags().StringVar(&version, "odata-version", "v2", "protocol version: v2 or v4")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw metadata XML")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}
