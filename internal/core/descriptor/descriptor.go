// Package descriptor defines the Deployment Descriptor, the caller's declared
// intent for one pipeline run.
// This is part of the Functional Core - all functions are pure with no I/O.
package descriptor

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEmptyInput  = errors.New("descriptor is empty")
	ErrInvalidYAML = errors.New("invalid YAML syntax")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Descriptor Types
// =============================================================================

// Artifact is a packaged file to upload under the run's artifact directory.
type Artifact struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Fragment is a template-shaped document (Resources, Outputs, Conditions, ...)
// declared by the caller and merged into the base template.
type Fragment map[string]any

// Descriptor is immutable for the duration of one pipeline run.
type Descriptor struct {
	Service           string            `yaml:"service"`
	Stage             string            `yaml:"stage"`
	Region            string            `yaml:"region"`
	StackName         string            `yaml:"stack_name,omitempty"`
	Template          string            `yaml:"template"`
	DeploymentBucket  string            `yaml:"deployment_bucket,omitempty"`
	Artifacts         []Artifact        `yaml:"artifacts,omitempty"`
	IAMRoleStatements []map[string]any  `yaml:"iam_role_statements,omitempty"`
	Resources         []Fragment        `yaml:"resources,omitempty"`
	Tags              map[string]string `yaml:"tags,omitempty"`

	// NoDeploy skips the deploy phase after the build phase completes.
	NoDeploy bool `yaml:"-"`
}

// Overrides carries values supplied on the command line. Empty fields leave
// the descriptor untouched.
type Overrides struct {
	Stage    string
	Region   string
	NoDeploy bool
}

// Parse decodes a YAML descriptor.
func Parse(data []byte) (*Descriptor, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ParseError{Message: "descriptor is empty", Err: ErrEmptyInput}
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, &ParseError{Message: err.Error(), Err: ErrInvalidYAML}
	}

	for i, frag := range d.Resources {
		if frag == nil {
			return nil, &ParseError{
				Field:   fmt.Sprintf("resources[%d]", i),
				Message: "fragment must be a mapping",
				Err:     ErrInvalidYAML,
			}
		}
	}

	return &d, nil
}

// WithOverrides returns a copy of the descriptor with the overrides applied.
func (d Descriptor) WithOverrides(o Overrides) Descriptor {
	if o.Stage != "" {
		d.Stage = o.Stage
	}
	if o.Region != "" {
		d.Region = o.Region
	}
	if o.NoDeploy {
		d.NoDeploy = true
	}
	if d.Tags != nil {
		d.Tags = maps.Clone(d.Tags)
	}
	return d
}

// ResolvedStackName returns the explicit stack name or "{service}-{stage}".
//
// Example:
//
//	Descriptor{Service: "api", Stage: "dev"}.ResolvedStackName() // "api-dev"
func (d Descriptor) ResolvedStackName() string {
	if d.StackName != "" {
		return d.StackName
	}
	return fmt.Sprintf("%s-%s", d.Service, d.Stage)
}

// DeploymentID returns the stable identifier of this service/stage pair.
// It is the common storage prefix of every artifact directory the pair owns.
// Pattern: stackdeploy/{service}/{stage}
func (d Descriptor) DeploymentID() string {
	return fmt.Sprintf("stackdeploy/%s/%s", d.Service, d.Stage)
}
