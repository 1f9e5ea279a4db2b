package main

import (
	"errors"

	"github.com/artpar/stackdeploy/internal/core/descriptor"
	"github.com/artpar/stackdeploy/internal/core/stack"
	"github.com/artpar/stackdeploy/internal/core/template"
	"github.com/artpar/stackdeploy/internal/core/validation"
	"github.com/artpar/stackdeploy/internal/engine"
	"github.com/artpar/stackdeploy/internal/shell/storage"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitValidationError = 2
	ExitBuildError      = 3
	ExitStorageError    = 4
	ExitStackError      = 5
	// ExitTimeout means the stack operation outcome is unknown.
	ExitTimeout = 6
)

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, validation.ErrValidation):
		return ExitValidationError
	case errors.Is(err, descriptor.ErrInvalidYAML), errors.Is(err, descriptor.ErrEmptyInput):
		return ExitConfigError
	case errors.Is(err, stack.ErrMonitorTimeout):
		return ExitTimeout
	case errors.Is(err, template.ErrMergeConflict),
		errors.Is(err, template.ErrInvalidTemplate),
		errors.Is(err, template.ErrEmptyTemplate):
		return ExitBuildError
	case errors.Is(err, storage.ErrStorageProvision), errors.Is(err, storage.ErrUpload):
		return ExitStorageError
	case errors.Is(err, stack.ErrSubmission), errors.Is(err, stack.ErrOperationFailed):
		return ExitStackError
	}

	var perr *engine.PipelineError
	if errors.As(err, &perr) {
		switch perr.Step {
		case engine.StepUploadArtifacts:
			return ExitStorageError
		case engine.StepUpdateStack:
			return ExitStackError
		}
		if perr.Phase == engine.PhaseBuild {
			return ExitBuildError
		}
	}
	return ExitConfigError
}
