package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildEntityKeySingle(t *testing.T) {
	require.Equal(t, "('100000123')", BuildEntityKey(map[string]interface{}{"OrderId": "100000123"}))
	require.Equal(t, "(42)", BuildEntityKey(map[string]interface{}{"Id": float64(42)}))
	require.Equal(t, "", BuildEntityKey(nil))
}

func TestBuildEntityKeyComposite(t *testing.T) {
	key := BuildEntityKey(map[string]interface{}{
		"OrderId": "5",
		"ItemNo":  "10",
	})
	require.Equal(t, "(ItemNo='10',OrderId='5')", key)
}

func TestBuildEntityKeyEscapesQuotes(t *testing.T) {
	require.Equal(t, "('O''Brien')", BuildEntityKey(map[string]interface{}{"Name": "O'Brien"}))
}

func TestBuildFilterOperatorSyntax(t *testing.T) {
	require.Equal(t, "ConfigValue ne 'NA'", BuildFilter("ConfigValue", "ne:NA"))
	require.Equal(t, "ConfigValue ne 'NA'", BuildFilter("ConfigValue", "ne: NA "))
	require.Equal(t, "ConfigValue eq 'test'", BuildFilter("ConfigValue", "eq:test"))
	require.Equal(t, "Price ge '100'", BuildFilter("Price", "ge:100"))
	require.Equal(t, "Price lt '50'", BuildFilter("Price", "lt:50"))
}

func TestBuildFilterFunctionOperators(t *testing.T) {
	require.Equal(t, "contains(Description, 'pump')", BuildFilter("Description", "contains:pump"))
	require.Equal(t, "startswith(SubsRefID, 'SR')", BuildFilter("SubsRefID", "startswith:SR"))
	require.Equal(t, "endswith(SubsRefID, '405')", BuildFilter("SubsRefID", "endswith:405"))
}

func TestBuildFilterUnknownOperatorFallsBackToExact(t *testing.T) {
	require.Equal(t, "Key eq 'foo:bar'", BuildFilter("Key", "foo:bar"))
}

func TestBuildFilterPlainEquality(t *testing.T) {
	require.Equal(t, "SubsRefID eq 'SR1155405'", BuildFilter("SubsRefID", "SR1155405"))
}

func TestBuildFilterWildcards(t *testing.T) {
	require.Equal(t, "startswith(SubsRefID, 'SR')", BuildFilter("SubsRefID", "SR*"))
	require.Equal(t, "endswith(SubsRefID, '1155405')", BuildFilter("SubsRefID", "*1155405"))
	require.Equal(t, "contains(SubsRefID, 'SR405')", BuildFilter("SubsRefID", "SR*405"))
	require.Equal(t, "contains(Description, 'pump')", BuildFilter("Description", "*pump*"))
}

func TestBuildFilterCommaList(t *testing.T) {
	filter := BuildFilter("ConfigKey", "CIS_CC_USAGE_TYPE,CIS_CC_ASSET_TYPE")
	require.Equal(t, "(ConfigKey eq 'CIS_CC_USAGE_TYPE' or ConfigKey eq 'CIS_CC_ASSET_TYPE')", filter)

	// Values in the list keep their own wildcard handling.
	require.Equal(t, "(startswith(Id, 'SR') or Id eq 'X1')", BuildFilter("Id", "SR*, X1"))
}

func TestBuildDateRangeFilter(t *testing.T) {
	require.Equal(t,
		"CreatedAt ge 2024-01-01T00:00:00Z and CreatedAt le 2024-12-31T23:59:59Z",
		BuildDateRangeFilter("CreatedAt", "2024-01-01", "2024-12-31"))
	require.Equal(t, "ChangedAt ge 2024-06-01T00:00:00Z", BuildDateRangeFilter("ChangedAt", "2024-06-01", ""))
	require.Equal(t, "CreatedAt le 2024-06-30T23:59:59Z", BuildDateRangeFilter("CreatedAt", "", "2024-06-30"))
	require.Equal(t,
		"CreatedAt ge 2024-01-01T08:30:00Z",
		BuildDateRangeFilter("CreatedAt", "2024-01-01T08:30:00", ""))
	require.Equal(t, "", BuildDateRangeFilter("CreatedAt", "", ""))
}

func TestCombineFilters(t *testing.T) {
	require.Equal(t, "a eq 1 and b eq 2", CombineFilters("a eq 1", "", "b eq 2"))
	require.Equal(t, "", CombineFilters("", ""))
}
