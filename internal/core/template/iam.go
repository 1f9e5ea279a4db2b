package template

import (
	"fmt"
	"slices"
)

// =============================================================================
// IAM Fragment Generation
// =============================================================================

const (
	// ExecutionRoleID is the logical ID of the generated Lambda execution role.
	ExecutionRoleID = "IamRoleLambdaExecution"

	TypeLambdaFunction = "AWS::Lambda::Function"
	TypeLogGroup       = "AWS::Logs::LogGroup"
	TypeIAMRole        = "AWS::IAM::Role"
)

// IAMOptions configures MergeIAM.
type IAMOptions struct {
	Service string
	Stage   string
	// Statements are appended to the generated policy after the log
	// permissions.
	Statements []map[string]any
}

// LogGroupID returns the logical ID of a function's log group.
// Pattern: {functionLogicalID}LogGroup
func LogGroupID(functionID string) string {
	return functionID + "LogGroup"
}

// MergeIAM returns a copy of t with the execution role and per-function log
// groups added and reserved. Functions without a Role are attached to the
// generated role. Templates with no functions and no extra statements are
// returned unchanged.
func MergeIAM(t *Template, opts IAMOptions) (*Template, error) {
	functions := t.Resources(TypeLambdaFunction)
	if len(functions) == 0 && len(opts.Statements) == 0 {
		return t.Clone(), nil
	}

	out := t.Clone()
	resources := out.Section(SectionResources)
	if _, exists := resources[ExecutionRoleID]; exists {
		return nil, &MergeConflictError{
			Path: SectionResources + "." + ExecutionRoleID,
			Key:  reservedKey(SectionResources, ExecutionRoleID),
		}
	}

	logGroupARNs := make([]any, 0, len(functions))
	for _, fnID := range functions {
		fn := resources[fnID].(map[string]any)
		props, ok := fn["Properties"].(map[string]any)
		if !ok {
			props = map[string]any{}
			fn["Properties"] = props
		}

		name, ok := props["FunctionName"].(string)
		if !ok || name == "" {
			name = fmt.Sprintf("%s-%s-%s", opts.Service, opts.Stage, fnID)
			props["FunctionName"] = name
		}
		if _, hasRole := props["Role"]; !hasRole {
			props["Role"] = map[string]any{"Fn::GetAtt": []any{ExecutionRoleID, "Arn"}}
			fn["DependsOn"] = appendDependsOn(fn["DependsOn"], ExecutionRoleID)
		}

		groupID := LogGroupID(fnID)
		if _, exists := resources[groupID]; exists {
			return nil, &MergeConflictError{
				Path: SectionResources + "." + groupID,
				Key:  reservedKey(SectionResources, groupID),
			}
		}
		resources[groupID] = map[string]any{
			"Type": TypeLogGroup,
			"Properties": map[string]any{
				"LogGroupName": "/aws/lambda/" + name,
			},
		}
		out.Reserve(SectionResources, groupID)
		logGroupARNs = append(logGroupARNs, map[string]any{
			"Fn::Sub": "arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/lambda/" + name + ":*",
		})
	}

	statements := make([]any, 0, 2+len(opts.Statements))
	if len(logGroupARNs) > 0 {
		statements = append(statements,
			map[string]any{
				"Effect":   "Allow",
				"Action":   []any{"logs:CreateLogStream", "logs:CreateLogGroup"},
				"Resource": logGroupARNs,
			},
			map[string]any{
				"Effect":   "Allow",
				"Action":   []any{"logs:PutLogEvents"},
				"Resource": streamARNs(logGroupARNs),
			},
		)
	}
	for _, s := range opts.Statements {
		statements = append(statements, deepCopy(map[string]any(s)))
	}

	resources[ExecutionRoleID] = map[string]any{
		"Type": TypeIAMRole,
		"Properties": map[string]any{
			"AssumeRolePolicyDocument": map[string]any{
				"Version": "2012-10-17",
				"Statement": []any{
					map[string]any{
						"Effect":    "Allow",
						"Principal": map[string]any{"Service": []any{"lambda.amazonaws.com"}},
						"Action":    []any{"sts:AssumeRole"},
					},
				},
			},
			"Path": "/",
			"Policies": []any{
				map[string]any{
					"PolicyName": fmt.Sprintf("%s-%s-lambda", opts.Service, opts.Stage),
					"PolicyDocument": map[string]any{
						"Version":   "2012-10-17",
						"Statement": DedupeStatements(statements),
					},
				},
			},
		},
	}
	out.Reserve(SectionResources, ExecutionRoleID)
	return out, nil
}

// streamARNs turns "log-group:<name>:*" ARNs into "log-group:<name>:*:*".
func streamARNs(groupARNs []any) []any {
	out := make([]any, 0, len(groupARNs))
	for _, arn := range groupARNs {
		sub := arn.(map[string]any)["Fn::Sub"].(string)
		out = append(out, map[string]any{"Fn::Sub": sub + ":*"})
	}
	return out
}

func appendDependsOn(existing any, id string) any {
	switch v := existing.(type) {
	case nil:
		return []any{id}
	case string:
		if v == id {
			return v
		}
		return []any{v, id}
	case []any:
		if slices.Contains(v, any(id)) {
			return v
		}
		return append(v, id)
	default:
		return existing
	}
}
