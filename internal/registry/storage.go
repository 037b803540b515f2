package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/odata-gateway/go/internal/constants"
)

// ErrToolExists is returned when creating a tool whose name is taken.
var ErrToolExists = errors.New("tool already exists")

// ErrToolNotFound is returned for operations on unknown tools.
var ErrToolNotFound = errors.New("tool not found")

// Storage is the versioned, file-backed tool registry. All operations are
// serialized under one mutex; every mutation backs up the current file,
// bumps the registry version and persists atomically via a temp file and
// rename. Helpers suffixed Locked require the mutex to be held.
type Storage struct {
	fs        afero.Fs
	path      string
	backupDir string
	logger    *zap.Logger

	mu         sync.Mutex
	version    int
	generation uint64
	createdAt  time.Time
	tools      map[string]*ToolDefinition
}

// NewStorage opens (or initializes) the registry at path on the given
// filesystem. A missing file is created empty; a present file is loaded.
func NewStorage(fs afero.Fs, path string, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{
		fs:        fs,
		path:      path,
		backupDir: filepath.Join(filepath.Dir(path), "backups"),
		logger:    logger.Named("registry"),
		tools:     map[string]*ToolDefinition{},
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	if err := fs.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.createdAt = time.Now().UTC()
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		s.logger.Info("initialized empty tool registry", zap.String("path", path))
		return s, nil
	}

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	s.logger.Info("loaded tool registry",
		zap.String("path", path),
		zap.Int("tools", len(s.tools)),
		zap.Int("version", s.version))
	return s, nil
}

// Path returns the registry file location.
func (s *Storage) Path() string { return s.path }

// Generation is a monotonic counter that changes on every mutation and
// reload. Consumers cache derived state against it and rebuild when it
// moves.
func (s *Storage) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Version returns the registry document version.
func (s *Storage) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Create registers a new tool.
func (s *Storage) Create(in CreateInput) (*ToolDefinition, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.tools[in.Name]; taken {
		return nil, fmt.Errorf("tool %q: %w", in.Name, ErrToolExists)
	}

	s.backupLocked()
	tool := newToolLocked(in)
	s.tools[in.Name] = tool
	s.version++
	s.generation++

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	s.logger.Info("created tool", zap.String("tool", in.Name))
	return tool.clone(), nil
}

// Get returns the named tool.
func (s *Storage) Get(name string) (*ToolDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}
	return tool.clone(), nil
}

// List returns tools sorted by name, optionally filtered to enabled ones.
func (s *Storage) List(enabledOnly bool) []*ToolDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ToolDefinition, 0, len(s.tools))
	for _, tool := range s.tools {
		if enabledOnly && !tool.Enabled {
			continue
		}
		out = append(out, tool.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Update applies partial changes to an existing tool, bumping its record
// version.
func (s *Storage) Update(name string, in UpdateInput) (*ToolDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tool, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}

	s.backupLocked()

	if in.Description != nil {
		tool.Description = *in.Description
	}
	if in.ServiceConfig != nil {
		tool.ServiceConfig = *in.ServiceConfig
	}
	if in.ReturnDirect != nil {
		v := *in.ReturnDirect
		tool.ReturnDirect = &v
	}
	if in.Defaults != nil {
		tool.Defaults = in.Defaults.clone()
	}
	if in.PromptHints != nil {
		tool.PromptHints = PromptHints{Items: append([]string(nil), in.PromptHints.Items...)}
	}
	if in.Enabled != nil {
		tool.Enabled = *in.Enabled
	}
	tool.UpdatedAt = time.Now().UTC()
	tool.Version++

	s.version++
	s.generation++

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	s.logger.Info("updated tool", zap.String("tool", name), zap.Int("tool_version", tool.Version))
	return tool.clone(), nil
}

// SetEnabled flips the enabled flag of one tool.
func (s *Storage) SetEnabled(name string, enabled bool) (*ToolDefinition, error) {
	return s.Update(name, UpdateInput{Enabled: &enabled})
}

// Delete removes a tool. Unknown names return ErrToolNotFound without
// touching the version.
func (s *Storage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tools[name]; !ok {
		return fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}

	s.backupLocked()
	delete(s.tools, name)
	s.version++
	s.generation++

	if err := s.persistLocked(); err != nil {
		return err
	}
	s.logger.Info("deleted tool", zap.String("tool", name))
	return nil
}

// Stats summarizes the current registry contents.
func (s *Storage) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalTools:      len(s.tools),
		RegistryVersion: s.version,
		LastUpdated:     s.createdAt,
	}
	for _, tool := range s.tools {
		if tool.Enabled {
			stats.EnabledTools++
		}
		if tool.UpdatedAt.After(stats.LastUpdated) {
			stats.LastUpdated = tool.UpdatedAt
		}
	}
	stats.DisabledTools = stats.TotalTools - stats.EnabledTools
	return stats
}

// ExportAll snapshots the whole registry.
func (s *Storage) ExportAll() Export {
	s.mu.Lock()
	defer s.mu.Unlock()

	tools := make(map[string]*ToolDefinition, len(s.tools))
	for name, tool := range s.tools {
		tools[name] = tool.clone()
	}
	return Export{Version: s.version, ExportedAt: time.Now().UTC(), Tools: tools}
}

// Import bulk-loads tools. Existing names are skipped unless
// replaceExisting is set. The whole batch is one mutation: one backup,
// one version bump, one persist.
func (s *Storage) Import(req ImportRequest) (imported, skipped int, err error) {
	for name, in := range req.Tools {
		if in.Name == "" {
			in.Name = name
		}
		if verr := in.Validate(); verr != nil {
			return 0, 0, fmt.Errorf("tool %q: %w", name, verr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.backupLocked()

	for name, in := range req.Tools {
		if in.Name == "" {
			in.Name = name
		}
		if _, taken := s.tools[in.Name]; taken && !req.ReplaceExisting {
			skipped++
			continue
		}
		s.tools[in.Name] = newToolLocked(in)
		imported++
	}
	s.version++
	s.generation++

	if perr := s.persistLocked(); perr != nil {
		return 0, 0, perr
	}
	s.logger.Info("imported tools", zap.Int("imported", imported), zap.Int("skipped", skipped))
	return imported, skipped, nil
}

// Reload re-reads the registry file, replacing in-memory state. Used for
// hot reload when the file changes underneath the process.
func (s *Storage) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	s.generation++
	s.logger.Info("reloaded tool registry",
		zap.Int("tools", len(s.tools)),
		zap.Int("version", s.version))
	return nil
}

func newToolLocked(in CreateInput) *ToolDefinition {
	now := time.Now().UTC()
	tool := &ToolDefinition{
		Name:          in.Name,
		Description:   in.Description,
		ServiceConfig: in.ServiceConfig,
		Enabled:       in.enabled(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
		PromptHints:   PromptHints{Items: []string{}},
	}
	if in.ReturnDirect != nil {
		v := *in.ReturnDirect
		tool.ReturnDirect = &v
	}
	if in.Defaults != nil {
		tool.Defaults = in.Defaults.clone()
	}
	if in.PromptHints != nil {
		tool.PromptHints = PromptHints{Items: append([]string(nil), in.PromptHints.Items...)}
	}
	return tool
}

func (s *Storage) loadLocked() error {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return fmt.Errorf("reading registry file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing registry file: %w", err)
	}
	s.version = doc.Version
	s.createdAt = doc.CreatedAt
	if doc.Tools == nil {
		doc.Tools = map[string]*ToolDefinition{}
	}
	s.tools = doc.Tools
	return nil
}

func (s *Storage) persistLocked() error {
	now := time.Now().UTC()
	if s.createdAt.IsZero() {
		s.createdAt = now
	}
	doc := document{
		Version:   s.version,
		CreatedAt: s.createdAt,
		UpdatedAt: now,
		Tools:     s.tools,
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("writing registry temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing registry file: %w", err)
	}
	return nil
}

// backupLocked copies the current registry file aside before a mutation.
// Backup failures are logged but never block the mutation itself.
func (s *Storage) backupLocked() {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil || !exists {
		return
	}

	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		s.logger.Warn("skipping registry backup", zap.Error(err))
		return
	}

	stamp := time.Now().UTC().Format("20060102_150405.000000000")
	name := fmt.Sprintf("tool_registry_v%d_%s.json", s.version, strings.ReplaceAll(stamp, ".", "_"))
	if err := afero.WriteFile(s.fs, filepath.Join(s.backupDir, name), raw, 0o644); err != nil {
		s.logger.Warn("failed to write registry backup", zap.Error(err))
		return
	}
	s.cleanupBackupsLocked(constants.DefaultBackupRetention)
}

func (s *Storage) cleanupBackupsLocked(keep int) {
	entries, err := afero.ReadDir(s.fs, s.backupDir)
	if err != nil {
		s.logger.Warn("failed to scan backup directory", zap.Error(err))
		return
	}

	backups := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "tool_registry_") {
			continue
		}
		backups = append(backups, entry)
	}
	if len(backups) <= keep {
		return
	}

	// Oldest first.
	sort.Slice(backups, func(i, j int) bool { return backups[i].ModTime().Before(backups[j].ModTime()) })
	for _, stale := range backups[:len(backups)-keep] {
		if err := s.fs.Remove(filepath.Join(s.backupDir, stale.Name())); err != nil {
			s.logger.Warn("failed to remove stale backup",
				zap.String("backup", stale.Name()),
				zap.Error(err))
		}
	}
}
