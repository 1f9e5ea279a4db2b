package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/artpar/stackdeploy/internal/core/artifact"
	"github.com/artpar/stackdeploy/internal/core/descriptor"
)

// =============================================================================
// Error Types
// =============================================================================

// ErrValidation is the sentinel matched by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports the first descriptor field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// =============================================================================
// Descriptor Validation Functions
// =============================================================================

var (
	serviceNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)
	stageNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
)

// ValidateDeploymentFields validates the required descriptor fields.
// Returns the field name and error message if validation fails.
// Returns empty strings if all fields are valid.
//
// Example:
//
//	field, msg := ValidateDeploymentFields(d)
//	if field != "" {
//	    // Abort before any remote call
//	}
func ValidateDeploymentFields(d descriptor.Descriptor) (field, message string) {
	if d.Service == "" {
		return "service", "service is required"
	}
	if !serviceNamePattern.MatchString(d.Service) {
		return "service", "service must start with a letter and contain only letters, digits and hyphens"
	}
	if d.Stage == "" {
		return "stage", "stage is required (set it in the descriptor or pass --stage)"
	}
	if !stageNamePattern.MatchString(d.Stage) {
		return "stage", "stage must contain only letters, digits and hyphens"
	}
	if d.Region == "" {
		return "region", "region is required (set it in the descriptor or pass --region)"
	}
	if d.Template == "" {
		return "template", "template is required"
	}
	return ValidateArtifacts(d.Artifacts)
}

// ValidateArtifacts checks that every artifact has a name and a path, and
// that no two artifacts, nor an artifact and the compiled template, map to
// the same object key.
func ValidateArtifacts(artifacts []descriptor.Artifact) (field, message string) {
	templateKey := artifact.ObjectKey("", artifact.TemplateObjectName)
	seen := make(map[string]bool, len(artifacts))
	for i, a := range artifacts {
		if a.Name == "" {
			return fmt.Sprintf("artifacts[%d].name", i), "artifact name is required"
		}
		if a.Path == "" {
			return fmt.Sprintf("artifacts[%d].path", i), "artifact path is required"
		}
		key := artifact.ObjectKey("", a.Name)
		if key == templateKey {
			return fmt.Sprintf("artifacts[%d].name", i), fmt.Sprintf("artifact name %q is reserved for the compiled template", a.Name)
		}
		if seen[key] {
			return fmt.Sprintf("artifacts[%d].name", i), fmt.Sprintf("duplicate artifact name %q", a.Name)
		}
		seen[key] = true
	}
	return "", ""
}

// ValidateRegion checks that region is one of the resolvable regions.
func ValidateRegion(region string, known []string) (field, message string) {
	for _, r := range known {
		if r == region {
			return "", ""
		}
	}
	return "region", fmt.Sprintf("region %q is not available to this account", region)
}

// Validate runs ValidateDeploymentFields and wraps a failure as a *ValidationError.
func Validate(d descriptor.Descriptor) error {
	if field, msg := ValidateDeploymentFields(d); field != "" {
		return NewValidationError(field, msg)
	}
	return nil
}
