package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

// Template sections.
const (
	SectionResources  = "Resources"
	SectionOutputs    = "Outputs"
	SectionParameters = "Parameters"
)

// FormatVersion is the only template format version CloudFormation accepts.
const FormatVersion = "2010-09-09"

// MaxInlineBodySize is the largest template body CloudFormation accepts
// inline. Larger templates must be submitted by URL.
const MaxInlineBodySize = 51200

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEmptyTemplate   = errors.New("template is empty")
	ErrInvalidTemplate = errors.New("invalid template")
	ErrMergeConflict   = errors.New("merge conflict")
)

// MergeConflictError reports a fragment value that would overwrite a
// framework-reserved value.
type MergeConflictError struct {
	// Path is the dotted location of the conflicting value,
	// e.g. "Resources.IamRoleLambdaExecution.Properties.Path".
	Path string
	// Key is the reserved "Section.LogicalID" the value belongs to.
	Key string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict at %s: %s is reserved", e.Path, e.Key)
}

func (e *MergeConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}

// =============================================================================
// Template Type
// =============================================================================

// Template is a CloudFormation document plus the set of keys the framework
// owns.
type Template struct {
	Body     map[string]any
	reserved map[string]struct{}
}

// New wraps a decoded document. A missing format version is filled in.
func New(body map[string]any) *Template {
	if body == nil {
		body = map[string]any{}
	}
	t := &Template{Body: body, reserved: map[string]struct{}{}}
	if _, ok := body["AWSTemplateFormatVersion"]; !ok {
		body["AWSTemplateFormatVersion"] = FormatVersion
	}
	t.reserved["AWSTemplateFormatVersion"] = struct{}{}
	return t
}

// Parse decodes a JSON or YAML template.
// YAML short-form intrinsics (!Ref, !Sub) are not supported; use the
// long form ({"Ref": ...}).
func Parse(data []byte) (*Template, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmptyTemplate
	}
	var body map[string]any
	if err := yaml.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if body == nil {
		return nil, ErrEmptyTemplate
	}
	if res, ok := body[SectionResources]; ok {
		if _, isMap := res.(map[string]any); !isMap {
			return nil, fmt.Errorf("%w: Resources must be a mapping", ErrInvalidTemplate)
		}
	}
	return New(body), nil
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	return &Template{
		Body:     deepCopy(t.Body).(map[string]any),
		reserved: maps.Clone(t.reserved),
	}
}

// Reserve marks Section.LogicalID as framework-owned.
func (t *Template) Reserve(section, logicalID string) {
	t.reserved[reservedKey(section, logicalID)] = struct{}{}
}

// IsReserved reports whether Section.LogicalID is framework-owned.
func (t *Template) IsReserved(section, logicalID string) bool {
	_, ok := t.reserved[reservedKey(section, logicalID)]
	return ok
}

// ReservedKeys returns the reserved keys in sorted order.
func (t *Template) ReservedKeys() []string {
	return slices.Sorted(maps.Keys(t.reserved))
}

// Section returns a top-level section, creating it if absent.
func (t *Template) Section(name string) map[string]any {
	if sec, ok := t.Body[name].(map[string]any); ok {
		return sec
	}
	sec := map[string]any{}
	t.Body[name] = sec
	return sec
}

// Resources returns the logical IDs of every resource of the given type,
// sorted.
func (t *Template) Resources(resourceType string) []string {
	res, _ := t.Body[SectionResources].(map[string]any)
	var ids []string
	for id, v := range res {
		r, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if r["Type"] == resourceType {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// JSON encodes the body compactly, as submitted to the stack service.
func (t *Template) JSON() ([]byte, error) {
	return json.Marshal(t.Body)
}

// IndentedJSON encodes the body for humans.
func (t *Template) IndentedJSON() ([]byte, error) {
	return json.MarshalIndent(t.Body, "", "  ")
}

func reservedKey(section, logicalID string) string {
	if logicalID == "" {
		return section
	}
	return section + "." + logicalID
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}
