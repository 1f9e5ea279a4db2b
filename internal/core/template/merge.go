package template

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// =============================================================================
// Fragment Merge
// =============================================================================

// Merge returns a new template with every fragment merged into base, in order.
// base is not modified. Fragments whose keys are disjoint commute.
//
// Example:
//
//	merged, err := Merge(base, map[string]any{
//	    "Resources": map[string]any{"Queue": map[string]any{"Type": "AWS::SQS::Queue"}},
//	})
//	var conflict *MergeConflictError
//	if errors.As(err, &conflict) {
//	    // conflict.Path names the offending value
//	}
func Merge(base *Template, fragments ...map[string]any) (*Template, error) {
	out := base.Clone()
	for _, frag := range fragments {
		if err := out.mergeFragment(frag); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *Template) mergeFragment(frag map[string]any) error {
	for _, section := range slices.Sorted(maps.Keys(frag)) {
		value := frag[section]

		current, exists := t.Body[section]
		if !exists {
			t.Body[section] = deepCopy(value)
			continue
		}

		src, srcIsMap := value.(map[string]any)
		dst, dstIsMap := current.(map[string]any)
		if !srcIsMap || !dstIsMap {
			merged, err := mergeValue([]string{section}, current, value, t.owner(section, ""))
			if err != nil {
				return err
			}
			t.Body[section] = merged
			continue
		}

		for _, id := range slices.Sorted(maps.Keys(src)) {
			cur, ok := dst[id]
			if !ok {
				dst[id] = deepCopy(src[id])
				continue
			}
			merged, err := mergeValue([]string{section, id}, cur, src[id], t.owner(section, id))
			if err != nil {
				return err
			}
			dst[id] = merged
		}
	}
	return nil
}

// owner returns the reserved key covering section/id, or "" if it is user-owned.
func (t *Template) owner(section, id string) string {
	if t.IsReserved(section, id) {
		return reservedKey(section, id)
	}
	if id != "" && t.IsReserved(section, "") {
		return reservedKey(section, "")
	}
	return ""
}

// mergeValue merges src into dst. dst may be modified in place; src never is.
func mergeValue(path []string, dst, src any, owner string) (any, error) {
	switch s := src.(type) {
	case map[string]any:
		if d, ok := dst.(map[string]any); ok {
			for _, k := range slices.Sorted(maps.Keys(s)) {
				cur, exists := d[k]
				if !exists {
					d[k] = deepCopy(s[k])
					continue
				}
				merged, err := mergeValue(append(slices.Clip(path), k), cur, s[k], owner)
				if err != nil {
					return nil, err
				}
				d[k] = merged
			}
			return d, nil
		}
	case []any:
		if d, ok := dst.([]any); ok {
			if path[len(path)-1] == "Statement" {
				return DedupeStatements(append(slices.Clip(d), deepCopy(s).([]any)...)), nil
			}
			if owner != "" {
				return mergeReservedList(path, d, s, owner)
			}
		}
	}

	if owner == "" {
		return deepCopy(src), nil
	}
	if reflect.DeepEqual(dst, src) {
		return dst, nil
	}
	return nil, &MergeConflictError{Path: strings.Join(path, "."), Key: owner}
}

// mergeReservedList merges lists of mappings element by element, appending
// any extra fragment elements. Other lists must match exactly.
func mergeReservedList(path []string, dst, src []any, owner string) (any, error) {
	if !allMaps(dst) || !allMaps(src) {
		if reflect.DeepEqual(dst, src) {
			return dst, nil
		}
		return nil, &MergeConflictError{Path: strings.Join(path, "."), Key: owner}
	}

	last := path[len(path)-1]
	for i, item := range src {
		if i >= len(dst) {
			dst = append(dst, deepCopy(item))
			continue
		}
		elemPath := append(slices.Clone(path[:len(path)-1]), fmt.Sprintf("%s[%d]", last, i))
		merged, err := mergeValue(elemPath, dst[i], item, owner)
		if err != nil {
			return nil, err
		}
		dst[i] = merged
	}
	return dst, nil
}

func allMaps(items []any) bool {
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}
