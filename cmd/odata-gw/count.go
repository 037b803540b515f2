package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odata-gateway/go/internal/models"
)

func newCountCmd(a *app) *cobra.Command {
	var (
		system    string
		service   string
		namespace string
		entity    string
		version   string
		filter    string
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count entities in an entity set, optionally filtered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.newClient(system, models.ServiceEndpointConfig{
				ServiceName:      service,
				ServiceNamespace: namespace,
				EntityName:       entity,
				ODataVersion:     version,
			})
			if err != nil {
				return err
			}

			n, err := c.GetEntityCount(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "target system id")
	cmd.Flags().StringVar(&service, "service", "", "OData service name")
	cmd.Flags().StringVar(&namespace, "namespace", "", "service namespace (v4 only)")
	cmd.Flags().StringVar(&entity, "entity", "", "entity set name")
	cmd.Flags().StringVar(&version, "odata-version", "v2", "protocol version: v2 or v4")
	cmd.Flags().StringVar(&filter, "filter", "", "filter expression")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}
