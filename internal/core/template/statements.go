package template

import (
	"encoding/json"
	"slices"
	"strings"
)

// =============================================================================
// IAM Statement Identity
// =============================================================================

// StatementKey returns the (Effect, Action, Resource) identity of an IAM
// policy statement. Action and Resource are order-insensitive and a single
// string equals a one-element list.
//
// Example:
//
//	StatementKey(map[string]any{"Effect": "Allow", "Action": "s3:GetObject", "Resource": "*"})
//	// == StatementKey(map[string]any{"Effect": "Allow", "Action": []any{"s3:GetObject"}, "Resource": []any{"*"}})
func StatementKey(stmt any) string {
	m, ok := stmt.(map[string]any)
	if !ok {
		return "raw:" + canonical(stmt)
	}
	return strings.Join([]string{
		canonical(m["Effect"]),
		canonicalSet(m["Action"]),
		canonicalSet(m["Resource"]),
	}, "|")
}

// DedupeStatements removes statements whose identity was already seen,
// keeping the first occurrence.
func DedupeStatements(stmts []any) []any {
	seen := make(map[string]struct{}, len(stmts))
	out := make([]any, 0, len(stmts))
	for _, s := range stmts {
		key := StatementKey(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func canonicalSet(v any) string {
	var items []string
	switch val := v.(type) {
	case nil:
		return "[]"
	case []any:
		for _, item := range val {
			items = append(items, canonical(item))
		}
	default:
		items = []string{canonical(val)}
	}
	slices.Sort(items)
	items = slices.Compact(items)
	return "[" + strings.Join(items, ",") + "]"
}

// canonical relies on encoding/json sorting map keys.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
