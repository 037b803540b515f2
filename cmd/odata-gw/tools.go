package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odata-gateway/go/internal/registry"
	"github.com/odata-gateway/go/internal/tools"
)

func newToolsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage and run registered tools",
	}
	cmd.AddCommand(
		newToolsListCmd(a),
		newToolsGetCmd(a),
		newToolsCreateCmd(a),
		newToolsUpdateCmd(a),
		newToolsDeleteCmd(a),
		newToolsEnableCmd(a, true),
		newToolsEnableCmd(a, false),
		newToolsRunCmd(a),
		newToolsExportCmd(a),
		newToolsImportCmd(a),
		newToolsReloadCmd(a),
		newToolsStatsCmd(a),
		newToolsOverviewCmd(a),
		newToolsWatchCmd(a),
	)
	return cmd
}

func newToolsListCmd(a *app) *cobra.Command {
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd, a.storage.List(enabledOnly))
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled-only", false, "list only enabled tools")
	return cmd
}

func newToolsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show one tool definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := a.storage.Get(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, tool)
		},
	}
}

func newToolsCreateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new tool from a JSON definition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in registry.CreateInput
			if err := readJSONFile(file, &in); err != nil {
				return err
			}
			tool, err := a.storage.Create(in)
			if err != nil {
				return err
			}
			return printJSON(cmd, tool)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the tool definition")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newToolsUpdateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Apply partial changes to a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in registry.UpdateInput
			if err := readJSONFile(file, &in); err != nil {
				return err
			}
			tool, err := a.storage.Update(args[0], in)
			if err != nil {
				return err
			}
			return printJSON(cmd, tool)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the fields to change")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newToolsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a tool from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.storage.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newToolsEnableCmd(a *app, enable bool) *cobra.Command {
	use, short := "enable <name>", "Enable a tool"
	if !enable {
		use, short = "disable <name>", "Disable a tool"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := a.storage.SetEnabled(args[0], enable)
			if err != nil {
				return err
			}
			return printJSON(cmd, tool)
		},
	}
}

func newToolsRunCmd(a *app) *cobra.Command {
	var (
		system  string
		params  []string
		bodyArg string
	)
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Execute a registered tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.factory.Operation(args[0])
			if err != nil {
				return err
			}
			queryParams, err := parseParams(params)
			if err != nil {
				return err
			}
			body, err := parseBody(bodyArg)
			if err != nil {
				return err
			}
			result, err := op.Execute(cmd.Context(), tools.Overrides{
				SystemID:        system,
				QueryParameters: queryParams,
				RequestBody:     body,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "target system id")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter name=value (repeatable)")
	cmd.Flags().StringVarP(&bodyArg, "body", "d", "", "JSON request body, or @file to read from disk")
	return cmd
}

func newToolsExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the full registry as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd, a.storage.ExportAll())
		},
	}
}

func newToolsImportCmd(a *app) *cobra.Command {
	var (
		file    string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-load tools from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req registry.ImportRequest
			if err := readJSONFile(file, &req); err != nil {
				return err
			}
			if replace {
				req.ReplaceExisting = true
			}
			imported, skipped, err := a.storage.Import(req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tool(s), skipped %d\n", imported, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the tools to import")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace existing tools with the same name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newToolsReloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the registry from disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.storage.Reload(); err != nil {
				return err
			}
			return printJSON(cmd, a.storage.Stats())
		},
	}
}

func newToolsStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show registry statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd, a.storage.Stats())
		},
	}
}

func newToolsOverviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Render a catalog of the enabled tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(cmd.OutOrStdout(), a.factory.Overview())
			return nil
		},
	}
}

func newToolsWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the registry file and hot-reload on changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			watcher := registry.NewWatcher(a.storage, a.logger)
			return watcher.Run(cmd.Context())
		},
	}
}

func readJSONFile(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
