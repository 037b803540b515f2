package registry

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/odata-gateway/go/internal/models"
)

func testStorage(t *testing.T) (*Storage, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewStorage(fs, "data/tool_registry.json", nil)
	require.NoError(t, err)
	return s, fs
}

func sampleCreate(name string) CreateInput {
	return CreateInput{
		Name:        name,
		Description: "List sales orders",
		ServiceConfig: models.ServiceEndpointConfig{
			ServiceName:  "ZSALES_SRV",
			EntityName:   "Orders",
			ODataVersion: "v2",
			HTTPMethod:   "GET",
		},
	}
}

func TestNewStorageInitializesEmptyFile(t *testing.T) {
	s, fs := testStorage(t)
	require.Equal(t, 0, s.Version())
	require.Empty(t, s.List(false))

	exists, err := afero.Exists(fs, "data/tool_registry.json")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestCreateBumpsVersionAndPersists(t *testing.T) {
	s, fs := testStorage(t)

	tool, err := s.Create(sampleCreate("list_orders"))
	require.NoError(t, err)
	require.Equal(t, 1, tool.Version)
	require.True(t, tool.Enabled)
	require.Equal(t, 1, s.Version())

	// Reopen from the same file: state survives.
	reopened, err := NewStorage(fs, "data/tool_registry.json", nil)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Version())
	got, err := reopened.Get("list_orders")
	require.NoError(t, err)
	require.Equal(t, "ZSALES_SRV", got.ServiceConfig.ServiceName)
}

func TestCreateDuplicateFails(t *testing.T) {
	s, _ := testStorage(t)
	_, err := s.Create(sampleCreate("list_orders"))
	require.NoError(t, err)

	_, err = s.Create(sampleCreate("list_orders"))
	require.ErrorIs(t, err, ErrToolExists)
	require.Equal(t, 1, s.Version())
}

func TestCreateValidation(t *testing.T) {
	s, _ := testStorage(t)

	bad := []CreateInput{
		{},
		{Name: "has space", Description: "d"},
		{Name: "ok_name"},
		{Name: strings.Repeat("x", 101), Description: "d"},
		{Name: "t", Description: "d", ServiceConfig: models.ServiceEndpointConfig{EntityName: "E", ODataVersion: "v2"}},
		{Name: "t", Description: "d", ServiceConfig: models.ServiceEndpointConfig{ServiceName: "S", ODataVersion: "v2"}},
		{Name: "t", Description: "d", ServiceConfig: models.ServiceEndpointConfig{ServiceName: "S", EntityName: "E", ODataVersion: "v9"}},
	}
	for i, in := range bad {
		_, err := s.Create(in)
		require.Error(t, err, i)
	}
	require.Equal(t, 0, s.Version())
}

func TestListSortedAndFiltered(t *testing.T) {
	s, _ := testStorage(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.Create(sampleCreate(name))
		require.NoError(t, err)
	}
	_, err := s.SetEnabled("mid", false)
	require.NoError(t, err)

	all := s.List(false)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, toolNames(all))

	enabled := s.List(true)
	require.Equal(t, []string{"alpha", "zeta"}, toolNames(enabled))
}

func TestUpdateBumpsRecordVersion(t *testing.T) {
	s, _ := testStorage(t)
	_, err := s.Create(sampleCreate("list_orders"))
	require.NoError(t, err)

	desc := "List open sales orders"
	tool, err := s.Update("list_orders", UpdateInput{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, 2, tool.Version)
	require.Equal(t, desc, tool.Description)
	require.Equal(t, 2, s.Version())

	_, err = s.Update("missing", UpdateInput{Description: &desc})
	require.ErrorIs(t, err, ErrToolNotFound)
	require.Equal(t, 2, s.Version())
}

func TestDeleteMissingDoesNotBumpVersion(t *testing.T) {
	s, _ := testStorage(t)
	_, err := s.Create(sampleCreate("list_orders"))
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete("nope"), ErrToolNotFound)
	require.Equal(t, 1, s.Version())

	require.NoError(t, s.Delete("list_orders"))
	require.Equal(t, 2, s.Version())
	_, err = s.Get("list_orders")
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestStats(t *testing.T) {
	s, _ := testStorage(t)
	_, err := s.Create(sampleCreate("a"))
	require.NoError(t, err)
	_, err = s.Create(sampleCreate("b"))
	require.NoError(t, err)
	_, err = s.SetEnabled("b", false)
	require.NoError(t, err)

	stats := s.Stats()
	require.Equal(t, 2, stats.TotalTools)
	require.Equal(t, 1, stats.EnabledTools)
	require.Equal(t, 1, stats.DisabledTools)
	require.Equal(t, 3, stats.RegistryVersion)
	require.False(t, stats.LastUpdated.IsZero())
}

func TestExportImportRoundTrip(t *testing.T) {
	s, _ := testStorage(t)
	in := sampleCreate("list_orders")
	in.Defaults = &ToolDefaults{QueryParameters: map[string]string{"top": "10"}}
	in.PromptHints = &PromptHints{Items: []string{"use filter for status"}}
	_, err := s.Create(in)
	require.NoError(t, err)

	export := s.ExportAll()
	require.Len(t, export.Tools, 1)

	other, _ := testStorage(t)
	imported, skipped, err := other.Import(ImportRequest{Tools: map[string]CreateInput{
		"list_orders": in,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, imported)
	require.Equal(t, 0, skipped)

	got, err := other.Get("list_orders")
	require.NoError(t, err)
	require.Equal(t, "10", got.Defaults.QueryParameters["top"])
	require.Equal(t, []string{"use filter for status"}, got.PromptHints.Items)
}

func TestImportSkipsExistingUnlessReplace(t *testing.T) {
	s, _ := testStorage(t)
	_, err := s.Create(sampleCreate("list_orders"))
	require.NoError(t, err)
	versionBefore := s.Version()

	in := sampleCreate("list_orders")
	in.Description = "replacement"

	imported, skipped, err := s.Import(ImportRequest{Tools: map[string]CreateInput{"list_orders": in}})
	require.NoError(t, err)
	require.Equal(t, 0, imported)
	require.Equal(t, 1, skipped)
	// One version bump per import batch regardless of outcome.
	require.Equal(t, versionBefore+1, s.Version())

	_, _, err = s.Import(ImportRequest{
		Tools:           map[string]CreateInput{"list_orders": in},
		ReplaceExisting: true,
	})
	require.NoError(t, err)
	got, err := s.Get("list_orders")
	require.NoError(t, err)
	require.Equal(t, "replacement", got.Description)
}

func TestMutationsWriteBackups(t *testing.T) {
	s, fs := testStorage(t)
	_, err := s.Create(sampleCreate("a"))
	require.NoError(t, err)
	_, err = s.Create(sampleCreate("b"))
	require.NoError(t, err)

	entries, err := afero.ReadDir(fs, "data/backups")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.True(t, strings.HasPrefix(entry.Name(), "tool_registry_"))
	}
}

func TestBackupRetentionCap(t *testing.T) {
	s, fs := testStorage(t)
	for i := 0; i < 13; i++ {
		_, err := s.Create(sampleCreate("tool_" + string(rune('a'+i))))
		require.NoError(t, err)
	}

	entries, err := afero.ReadDir(fs, "data/backups")
	require.NoError(t, err)
	require.Len(t, entries, 10)
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	s, fs := testStorage(t)
	_, err := s.Create(sampleCreate("list_orders"))
	require.NoError(t, err)
	genBefore := s.Generation()

	// Simulate another process rewriting the file.
	other, err := NewStorage(fs, "data/tool_registry.json", nil)
	require.NoError(t, err)
	_, err = other.Create(sampleCreate("new_tool"))
	require.NoError(t, err)

	require.NoError(t, s.Reload())
	require.Greater(t, s.Generation(), genBefore)
	require.Len(t, s.List(false), 2)
}

func TestGenerationMovesOnEveryMutation(t *testing.T) {
	s, _ := testStorage(t)
	gen := s.Generation()

	_, err := s.Create(sampleCreate("a"))
	require.NoError(t, err)
	require.Greater(t, s.Generation(), gen)
	gen = s.Generation()

	_, err = s.SetEnabled("a", false)
	require.NoError(t, err)
	require.Greater(t, s.Generation(), gen)
	gen = s.Generation()

	require.NoError(t, s.Delete("a"))
	require.Greater(t, s.Generation(), gen)
}

func toolNames(tools []*ToolDefinition) []string {
	out := make([]string, 0, len(tools))
	for _, tool := range tools {
		out = append(out, tool.Name)
	}
	return out
}
