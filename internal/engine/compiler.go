package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/artpar/stackdeploy/internal/core/descriptor"
	"github.com/artpar/stackdeploy/internal/core/template"
)

// Compiler produces the base template the build phase merges into.
type Compiler interface {
	Compile(ctx context.Context, d descriptor.Descriptor) (*template.Template, error)
}

// FileCompiler reads a precompiled JSON or YAML template from the
// descriptor's template path.
type FileCompiler struct {
	BaseDir string
}

var _ Compiler = FileCompiler{}

func (c FileCompiler) Compile(_ context.Context, d descriptor.Descriptor) (*template.Template, error) {
	data, err := os.ReadFile(resolvePath(c.BaseDir, d.Template))
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	t, err := template.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Template, err)
	}
	return t, nil
}
