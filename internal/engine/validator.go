package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/stackdeploy/internal/core/descriptor"
	coreprovider "github.com/artpar/stackdeploy/internal/core/provider"
	"github.com/artpar/stackdeploy/internal/core/validation"
	"github.com/artpar/stackdeploy/internal/shell/provider"
)

// Validator checks deployment preconditions before any side effect.
// Pure field checks run first, then the template file is located, then
// credentials and region are confirmed through the capability probe.
type Validator struct {
	prober  provider.Prober
	baseDir string
	stat    func(string) (fs.FileInfo, error)
	logger  *slog.Logger
}

// NewValidator creates a validator. A nil prober skips the credential and
// region checks, which is what an offline build wants. Relative template
// paths are resolved against baseDir.
func NewValidator(prober provider.Prober, baseDir string, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		prober:  prober,
		baseDir: baseDir,
		stat:    os.Stat,
		logger:  logger.With("component", "validator"),
	}
}

// Validate returns the caller identity when the probe ran, or a zero
// Identity when it did not. Every precondition failure is a
// *validation.ValidationError.
func (v *Validator) Validate(ctx context.Context, d descriptor.Descriptor) (provider.Identity, error) {
	if err := validation.Validate(d); err != nil {
		return provider.Identity{}, err
	}

	info, err := v.stat(resolvePath(v.baseDir, d.Template))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return provider.Identity{}, validation.NewValidationError("template", "template file "+d.Template+" does not exist")
	case err != nil:
		return provider.Identity{}, validation.NewValidationError("template", err.Error())
	case info.IsDir():
		return provider.Identity{}, validation.NewValidationError("template", d.Template+" is a directory")
	}

	if v.prober == nil {
		return provider.Identity{}, nil
	}

	identity, err := v.prober.CallerIdentity(ctx)
	if err != nil {
		return provider.Identity{}, validation.NewValidationError("credentials", err.Error())
	}

	regions, err := v.prober.ListRegions(ctx)
	if err != nil {
		return provider.Identity{}, validation.NewValidationError("region", err.Error())
	}
	if field, msg := validation.ValidateRegion(d.Region, coreprovider.RegionIDs(regions)); field != "" {
		return provider.Identity{}, validation.NewValidationError(field, msg)
	}

	v.logger.Debug("preconditions satisfied", "account", identity.Account, "region", d.Region)
	return identity, nil
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
