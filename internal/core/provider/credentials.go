package provider

import "errors"

// =============================================================================
// Credential Validation (Pure - no I/O)
// =============================================================================

var (
	ErrAWSAccessKeyRequired = errors.New("AWS access key ID is required when a secret access key is set")
	ErrAWSSecretKeyRequired = errors.New("AWS secret access key is required when an access key ID is set")
	ErrAWSConflictingSource = errors.New("AWS profile and static access keys are mutually exclusive")
)

// AWSCredentials selects where AWS credentials come from.
// All fields empty means the SDK default credential chain.
type AWSCredentials struct {
	Profile         string `json:"profile,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// IsStatic reports whether static access keys were supplied.
func (c AWSCredentials) IsStatic() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ValidateAWSCredentials validates AWS credential fields.
func ValidateAWSCredentials(creds AWSCredentials) error {
	if creds.AccessKeyID != "" && creds.SecretAccessKey == "" {
		return ErrAWSSecretKeyRequired
	}
	if creds.AccessKeyID == "" && creds.SecretAccessKey != "" {
		return ErrAWSAccessKeyRequired
	}
	if creds.Profile != "" && creds.IsStatic() {
		return ErrAWSConflictingSource
	}
	return nil
}
