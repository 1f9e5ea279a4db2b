package validation

import (
	"errors"
	"testing"

	"github.com/artpar/stackdeploy/internal/core/artifact"
	"github.com/artpar/stackdeploy/internal/core/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDescriptor() descriptor.Descriptor {
	return descriptor.Descriptor{
		Service:  "orders",
		Stage:    "dev",
		Region:   "eu-west-1",
		Template: "build/template.json",
		Artifacts: []descriptor.Artifact{
			{Name: "orders.zip", Path: "build/orders.zip"},
		},
	}
}

// =============================================================================
// ValidateDeploymentFields Tests
// =============================================================================

func TestValidateDeploymentFields_AllValid(t *testing.T) {
	field, msg := ValidateDeploymentFields(validDescriptor())
	assert.Empty(t, field)
	assert.Empty(t, msg)
}

func TestValidateDeploymentFields_TableDriven(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *descriptor.Descriptor)
		field  string
	}{
		{"missing service", func(d *descriptor.Descriptor) { d.Service = "" }, "service"},
		{"bad service", func(d *descriptor.Descriptor) { d.Service = "9orders" }, "service"},
		{"missing stage", func(d *descriptor.Descriptor) { d.Stage = "" }, "stage"},
		{"bad stage", func(d *descriptor.Descriptor) { d.Stage = "dev/1" }, "stage"},
		{"missing region", func(d *descriptor.Descriptor) { d.Region = "" }, "region"},
		{"missing template", func(d *descriptor.Descriptor) { d.Template = "" }, "template"},
		{"artifact without name", func(d *descriptor.Descriptor) { d.Artifacts[0].Name = "" }, "artifacts[0].name"},
		{"artifact without path", func(d *descriptor.Descriptor) { d.Artifacts[0].Path = "" }, "artifacts[0].path"},
		{"duplicate artifact", func(d *descriptor.Descriptor) {
			d.Artifacts = append(d.Artifacts, descriptor.Artifact{Name: "orders.zip", Path: "other.zip"})
		}, "artifacts[1].name"},
		{"duplicate artifact after key normalisation", func(d *descriptor.Descriptor) {
			d.Artifacts = append(d.Artifacts, descriptor.Artifact{Name: "/orders.zip", Path: "other.zip"})
		}, "artifacts[1].name"},
		{"artifact named like the compiled template", func(d *descriptor.Descriptor) {
			d.Artifacts = append(d.Artifacts, descriptor.Artifact{Name: artifact.TemplateObjectName, Path: "template.zip"})
		}, "artifacts[1].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDescriptor()
			d.Artifacts = append([]descriptor.Artifact(nil), d.Artifacts...)
			tt.mutate(&d)

			field, msg := ValidateDeploymentFields(d)
			assert.Equal(t, tt.field, field)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestValidateDeploymentFields_ChecksInOrder(t *testing.T) {
	field, _ := ValidateDeploymentFields(descriptor.Descriptor{})
	assert.Equal(t, "service", field, "should check service first")
}

func TestValidateDeploymentFields_NoArtifactsIsValid(t *testing.T) {
	d := validDescriptor()
	d.Artifacts = nil
	field, _ := ValidateDeploymentFields(d)
	assert.Empty(t, field)
}

// =============================================================================
// ValidateRegion Tests
// =============================================================================

func TestValidateRegion(t *testing.T) {
	known := []string{"us-east-1", "eu-west-1"}

	field, _ := ValidateRegion("eu-west-1", known)
	assert.Empty(t, field)

	field, msg := ValidateRegion("mars-north-1", known)
	assert.Equal(t, "region", field)
	assert.Contains(t, msg, "mars-north-1")
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_ReturnsValidationError(t *testing.T) {
	d := validDescriptor()
	d.Stage = ""

	err := Validate(d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "stage", vErr.Field)
	assert.Contains(t, vErr.Error(), "stage")
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(validDescriptor()))
}
