package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/models"
	"github.com/odata-gateway/go/internal/registry"
	"github.com/odata-gateway/go/internal/service"
)

// Factory turns registry tool definitions into executable operations.
// Built operations are cached against the registry's generation counter,
// so any mutation or hot reload invalidates the whole cache at once.
type Factory struct {
	storage *registry.Storage
	orch    *service.Orchestrator
	logger  *zap.Logger

	mu        sync.Mutex
	primed    bool
	cachedGen uint64
	cache     map[string]*Operation
}

// NewFactory wires a factory over the given registry and orchestrator.
func NewFactory(storage *registry.Storage, orch *service.Orchestrator, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		storage: storage,
		orch:    orch,
		logger:  logger.Named("factory"),
		cache:   map[string]*Operation{},
	}
}

// Operation is one executable registered tool.
type Operation struct {
	Definition *registry.ToolDefinition
	orch       *service.Orchestrator
}

// Overrides carry per-call input layered over the tool's stored defaults.
// Caller values win on conflicts.
type Overrides struct {
	SystemID        string
	QueryParameters map[string]string
	RequestBody     map[string]interface{}
	Credentials     models.Credentials
}

// Execute runs the operation with defaults layered under the overrides.
func (op *Operation) Execute(ctx context.Context, over Overrides) (*models.CallResult, error) {
	def := op.Definition
	return op.orch.Call(ctx, models.CallRequest{
		HTTPMethod:      def.ServiceConfig.HTTPMethod,
		Endpoint:        def.ServiceConfig,
		SystemID:        over.SystemID,
		QueryParameters: mergeParams(def.Defaults.QueryParameters, over.QueryParameters),
		RequestBody:     mergeBody(def.Defaults.RequestBody, over.RequestBody),
		Credentials:     over.Credentials,
	})
}

// Operation returns the named operation if it exists and is enabled.
func (f *Factory) Operation(name string) (*Operation, error) {
	ops := f.snapshot()
	op, ok := ops[name]
	if !ok {
		return nil, fmt.Errorf("operation %q: %w", name, registry.ErrToolNotFound)
	}
	return op, nil
}

// Operations lists all enabled operations sorted by name.
func (f *Factory) Operations() []*Operation {
	ops := f.snapshot()
	out := make([]*Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition.Name < out[j].Definition.Name
	})
	return out
}

// Refresh forces a registry reload from disk. The generation bump that
// follows invalidates the operation cache.
func (f *Factory) Refresh() error {
	return f.storage.Reload()
}

// Overview renders a human-readable catalog of the enabled operations,
// including their usage hints.
func (f *Factory) Overview() string {
	ops := f.Operations()
	if len(ops) == 0 {
		return "No operations registered."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d operation(s) registered:\n", len(ops))
	for _, op := range ops {
		def := op.Definition
		fmt.Fprintf(&b, "\n%s: %s\n", def.Name, def.Description)
		fmt.Fprintf(&b, "  %s %s/%s (%s)\n",
			def.ServiceConfig.HTTPMethod,
			def.ServiceConfig.ServiceName,
			def.ServiceConfig.EntityName,
			def.ServiceConfig.ODataVersion)
		for _, hint := range def.PromptHints.Items {
			fmt.Fprintf(&b, "  - %s\n", hint)
		}
	}
	return b.String()
}

// snapshot returns the operation cache for the current registry
// generation, rebuilding it when the registry has moved.
func (f *Factory) snapshot() map[string]*Operation {
	gen := f.storage.Generation()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.primed && gen == f.cachedGen {
		return f.cache
	}

	cache := map[string]*Operation{}
	for _, def := range f.storage.List(true) {
		cache[def.Name] = &Operation{Definition: def, orch: f.orch}
	}
	f.cache = cache
	f.cachedGen = gen
	f.primed = true
	f.logger.Debug("rebuilt operation cache",
		zap.Uint64("generation", gen),
		zap.Int("operations", len(cache)))
	return cache
}

func mergeParams(defaults, overrides map[string]string) map[string]string {
	if len(defaults) == 0 {
		return overrides
	}
	out := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func mergeBody(defaults, overrides map[string]interface{}) map[string]interface{} {
	if len(defaults) == 0 {
		return overrides
	}
	out := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
