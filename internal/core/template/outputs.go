package template

import (
	"maps"
	"slices"
)

// =============================================================================
// Deployment Parameters and Outputs
// =============================================================================

// Parameter names the deploy phase binds when a template declares them.
const (
	ParamDeploymentBucket      = "DeploymentBucket"
	ParamArtifactDirectoryName = "ArtifactDirectoryName"

	// OutputDeploymentBucketName exposes the bucket holding the artifacts.
	OutputDeploymentBucketName = "DeploymentBucketName"
)

// ParameterValue is a template parameter bound for one run.
type ParameterValue struct {
	Key   string
	Value string
}

// AddDeploymentOutputs returns a copy of t declaring the DeploymentBucket
// parameter and a DeploymentBucketName output that echoes it. Both are
// reserved. A template that already declares the parameter keeps its own
// declaration; only its Type must be String.
func AddDeploymentOutputs(t *Template) (*Template, error) {
	out := t.Clone()
	param := map[string]any{"Type": "String"}
	declared, _ := out.Body[SectionParameters].(map[string]any)
	if _, ok := declared[ParamDeploymentBucket]; !ok {
		param["Description"] = "Bucket holding the deployment artifacts"
	}
	frag := map[string]any{
		SectionParameters: map[string]any{
			ParamDeploymentBucket: param,
		},
		SectionOutputs: map[string]any{
			OutputDeploymentBucketName: map[string]any{
				"Value": map[string]any{"Ref": ParamDeploymentBucket},
			},
		},
	}
	out.Reserve(SectionParameters, ParamDeploymentBucket)
	out.Reserve(SectionOutputs, OutputDeploymentBucketName)
	if err := out.mergeFragment(frag); err != nil {
		return nil, err
	}
	return out, nil
}

// BindParameters returns the values for every parameter in values that t
// declares, sorted by key. Undeclared parameters are dropped since the stack
// service rejects them.
func BindParameters(t *Template, values map[string]string) []ParameterValue {
	declared, _ := t.Body[SectionParameters].(map[string]any)
	var out []ParameterValue
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if _, ok := declared[key]; ok {
			out = append(out, ParameterValue{Key: key, Value: values[key]})
		}
	}
	return out
}
