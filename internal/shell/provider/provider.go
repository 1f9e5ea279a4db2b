// Package provider builds AWS configuration and probes the caller's
// credentials and regions.
// This is part of the Imperative Shell - handles I/O with cloud APIs.
package provider

import (
	"context"
	"errors"

	coreprovider "github.com/artpar/stackdeploy/internal/core/provider"
)

var (
	// ErrNoCredentials is returned when the caller identity cannot be
	// resolved.
	ErrNoCredentials = errors.New("no usable AWS credentials")
)

// Identity is the caller identity resolved by the probe.
type Identity struct {
	Account string
	ARN     string
}

// Prober defines the capability probe the validator delegates to.
type Prober interface {
	// CallerIdentity resolves the account the credentials belong to.
	CallerIdentity(ctx context.Context) (Identity, error)

	// ListRegions returns enabled regions (live from API, static catalog
	// on failure).
	ListRegions(ctx context.Context) ([]coreprovider.Region, error)
}
