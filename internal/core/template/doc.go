// Package template merges a base CloudFormation template with caller-declared
// fragments and with framework-generated IAM resources.
//
// This package is part of the Functional Core. Templates are plain
// map[string]any documents; every operation copies before it writes, so a
// *Template handed to Merge is never mutated.
//
// # Merge policy
//
// Fragments are merged section by section (Resources, Outputs, Conditions, ...)
// and logical ID by logical ID:
//
//   - A key missing from the base is inserted.
//   - Maps merge recursively.
//   - Lists under a "Statement" key are concatenated and de-duplicated by
//     (Effect, Action, Resource).
//   - Under a reserved key, a differing scalar is a *MergeConflictError.
//   - Under any other key, the fragment value wins.
//
// Reserved keys are the ones the framework generates itself: the Lambda
// execution role, its log groups, and the deployment bucket output.
package template
