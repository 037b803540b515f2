package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/config"
	"github.com/odata-gateway/go/internal/registry"
	"github.com/odata-gateway/go/internal/service"
	"github.com/odata-gateway/go/internal/tools"
	"github.com/odata-gateway/go/internal/transport"

	"github.com/spf13/afero"
)

// app holds the wired gateway components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pool    *transport.Manager
	cache   *transport.MetadataCache
	orch    *service.Orchestrator
	storage *registry.Storage
	factory *tools.Factory
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		verbose    bool
		a          = &app{}
	)

	root := &cobra.Command{
		Use:           "odata-gw",
		Short:         "SAP OData gateway: generic calls, metadata, and a dynamic tool registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(configFile, verbose)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCallCmd(a),
		newMetadataCmd(a),
		newCountCmd(a),
		newToolsCmd(a),
	)
	return root
}

func (a *app) init(configFile string, verbose bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := zap.NewProductionConfig()
	if verbose || cfg.Verbose {
		logCfg = zap.NewDevelopmentConfig()
	}
	if level, lerr := zap.ParseAtomicLevel(cfg.LogLevel); lerr == nil && !verbose {
		logCfg.Level = level
	}
	logger, err := logCfg.Build()
	if err != nil {
		return err
	}
	a.logger = logger

	a.pool = transport.NewManager(transport.PoolConfig{
		Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
	})
	a.cache = transport.NewMetadataCache(time.Duration(cfg.MetadataCacheTTL) * time.Second)
	a.orch = service.NewOrchestrator(cfg, a.pool, a.cache, logger)

	storage, err := registry.NewStorage(afero.NewOsFs(), cfg.RegistryPath, logger)
	if err != nil {
		return err
	}
	a.storage = storage
	a.factory = tools.NewFactory(storage, a.orch, logger)
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
