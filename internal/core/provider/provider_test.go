package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Region Catalog Tests
// =============================================================================

func TestAWSRegions_AllAvailable(t *testing.T) {
	regions := AWSRegions()
	assert.NotEmpty(t, regions)
	for _, r := range regions {
		assert.True(t, r.Available, r.ID)
		assert.NotEmpty(t, r.Name, r.ID)
	}
}

func TestRegionIDs_SkipsUnavailable(t *testing.T) {
	ids := RegionIDs([]Region{
		{ID: "us-east-1", Available: true},
		{ID: "me-south-1", Available: false},
	})
	assert.Equal(t, []string{"us-east-1"}, ids)
}

// =============================================================================
// Credential Validation Tests
// =============================================================================

func TestValidateAWSCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds AWSCredentials
		want  error
	}{
		{"default chain", AWSCredentials{}, nil},
		{"profile", AWSCredentials{Profile: "deploy"}, nil},
		{"static", AWSCredentials{AccessKeyID: "AKIA", SecretAccessKey: "secret"}, nil},
		{"missing secret", AWSCredentials{AccessKeyID: "AKIA"}, ErrAWSSecretKeyRequired},
		{"missing key", AWSCredentials{SecretAccessKey: "secret"}, ErrAWSAccessKeyRequired},
		{"both sources", AWSCredentials{Profile: "p", AccessKeyID: "AKIA", SecretAccessKey: "s"}, ErrAWSConflictingSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateAWSCredentials(tt.creds))
		})
	}
}

func TestAWSCredentials_IsStatic(t *testing.T) {
	assert.False(t, AWSCredentials{}.IsStatic())
	assert.False(t, AWSCredentials{AccessKeyID: "AKIA"}.IsStatic())
	assert.True(t, AWSCredentials{AccessKeyID: "AKIA", SecretAccessKey: "s"}.IsStatic())
}
