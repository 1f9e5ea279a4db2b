// Package validation provides pure validation functions for deployment
// descriptors.
//
// This package contains the functional core logic for checking deployment
// preconditions before any side-effecting call is made. All functions are pure
// (no I/O, no side effects).
//
// # Functions
//
//   - ValidateDeploymentFields: Validate required descriptor fields
//   - ValidateArtifacts: Validate the artifact list
//   - ValidateRegion: Check a region against the set of resolvable regions
//   - Validate: Run the field checks and return a *ValidationError
//
// # Usage
//
// The engine validator runs these checks first, then probes the remote
// provider only when the descriptor is well formed:
//
//	if field, msg := validation.ValidateDeploymentFields(d); field != "" {
//	    return validation.NewValidationError(field, msg)
//	}
package validation
