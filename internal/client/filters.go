package client

import (
	"fmt"
	"sort"
	"strings"
)

// BuildEntityKey renders a key predicate for an entity access. A single
// key renders positionally, e.g. ('100000123') or (42); composite keys
// render as name=value pairs in deterministic order.
func BuildEntityKey(keys map[string]interface{}) string {
	if len(keys) == 0 {
		return ""
	}
	if len(keys) == 1 {
		for _, v := range keys {
			return "(" + formatKeyValue(v) + ")"
		}
	}

	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+formatKeyValue(keys[name]))
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func formatKeyValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return quoteLiteral(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// BuildFilter renders a $filter expression for one field. The value may
// carry an operator prefix ("ne:NA", "ge:100"), shell wildcards
// ("SR*" startswith, "*405" endswith, "SR*405" contains), or a
// comma-separated list which becomes an OR chain. Plain values are exact
// matches.
func BuildFilter(field, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	if strings.Contains(value, ",") && !strings.Contains(value, ":") {
		parts := strings.Split(value, ",")
		terms := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			terms = append(terms, buildWildcardFilter(field, part))
		}
		if len(terms) > 1 {
			return "(" + strings.Join(terms, " or ") + ")"
		}
		if len(terms) == 1 {
			return terms[0]
		}
		return ""
	}

	if op, operand, found := strings.Cut(value, ":"); found {
		operand = strings.TrimSpace(operand)
		switch strings.ToLower(strings.TrimSpace(op)) {
		case "ne", "eq", "gt", "ge", "lt", "le":
			return fmt.Sprintf("%s %s %s",
				field, strings.ToLower(strings.TrimSpace(op)), quoteLiteral(operand))
		case "contains":
			return fmt.Sprintf("contains(%s, %s)", field, quoteLiteral(operand))
		case "startswith":
			return fmt.Sprintf("startswith(%s, %s)", field, quoteLiteral(operand))
		case "endswith":
			return fmt.Sprintf("endswith(%s, %s)", field, quoteLiteral(operand))
		default:
			// Unknown operator: treat the whole value as an exact match.
			return fmt.Sprintf("%s eq %s", field, quoteLiteral(value))
		}
	}

	return buildWildcardFilter(field, value)
}

func buildWildcardFilter(field, value string) string {
	if !strings.Contains(value, "*") {
		return fmt.Sprintf("%s eq %s", field, quoteLiteral(value))
	}
	switch {
	case strings.HasPrefix(value, "*") && strings.HasSuffix(value, "*"):
		return fmt.Sprintf("contains(%s, %s)", field, quoteLiteral(strings.Trim(value, "*")))
	case strings.HasSuffix(value, "*"):
		return fmt.Sprintf("startswith(%s, %s)", field, quoteLiteral(strings.TrimSuffix(value, "*")))
	case strings.HasPrefix(value, "*"):
		return fmt.Sprintf("endswith(%s, %s)", field, quoteLiteral(strings.TrimPrefix(value, "*")))
	default:
		// Interior wildcard ("SR*405"): match on the remaining characters.
		return fmt.Sprintf("contains(%s, %s)", field, quoteLiteral(strings.ReplaceAll(value, "*", "")))
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BuildDateRangeFilter renders an inclusive datetime-range predicate.
// Bare dates (YYYY-MM-DD) expand to the start or end of the day; full
// datetimes get a Z suffix when missing. Either bound may be empty.
func BuildDateRangeFilter(field, from, to string) string {
	var terms []string
	if from = strings.TrimSpace(from); from != "" {
		terms = append(terms, fmt.Sprintf("%s ge %s", field, expandDate(from, "T00:00:00Z")))
	}
	if to = strings.TrimSpace(to); to != "" {
		terms = append(terms, fmt.Sprintf("%s le %s", field, expandDate(to, "T23:59:59Z")))
	}
	return strings.Join(terms, " and ")
}

func expandDate(date, dayEdge string) string {
	if len(date) == 10 {
		return date + dayEdge
	}
	if !strings.HasSuffix(date, "Z") {
		return date + "Z"
	}
	return date
}

// CombineFilters joins filter expressions with "and", skipping empties.
func CombineFilters(filters ...string) string {
	terms := make([]string, 0, len(filters))
	for _, f := range filters {
		if strings.TrimSpace(f) != "" {
			terms = append(terms, f)
		}
	}
	return strings.Join(terms, " and ")
}
