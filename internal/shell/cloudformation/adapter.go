package cloudformation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cfn "github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	smithy "github.com/aws/smithy-go"

	"github.com/artpar/stackdeploy/internal/core/stack"
)

// CloudFormationAPI is the subset of the CloudFormation client used by
// CloudFormationService.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cfn.DescribeStacksInput, optFns ...func(*cfn.Options)) (*cfn.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cfn.CreateStackInput, optFns ...func(*cfn.Options)) (*cfn.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cfn.UpdateStackInput, optFns ...func(*cfn.Options)) (*cfn.UpdateStackOutput, error)
	DescribeStackEvents(ctx context.Context, params *cfn.DescribeStackEventsInput, optFns ...func(*cfn.Options)) (*cfn.DescribeStackEventsOutput, error)
}

var (
	_ CloudFormationAPI = (*cfn.Client)(nil)
	_ StackService      = (*CloudFormationService)(nil)
)

var capabilities = []cfntypes.Capability{
	cfntypes.CapabilityCapabilityIam,
	cfntypes.CapabilityCapabilityNamedIam,
}

// CloudFormationService implements StackService on AWS CloudFormation.
type CloudFormationService struct {
	client CloudFormationAPI
	logger *slog.Logger
}

// NewCloudFormationService creates a StackService backed by CloudFormation.
func NewCloudFormationService(client CloudFormationAPI, logger *slog.Logger) *CloudFormationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudFormationService{client: client, logger: logger.With("component", "cloudformation")}
}

// NewCloudFormationServiceFromConfig creates a StackService from an AWS config.
func NewCloudFormationServiceFromConfig(cfg aws.Config, logger *slog.Logger) *CloudFormationService {
	return NewCloudFormationService(cfn.NewFromConfig(cfg), logger)
}

// Describe reports whether the stack exists and whether it is busy.
func (s *CloudFormationService) Describe(ctx context.Context, stackName string) (stack.Handle, error) {
	st, err := s.describe(ctx, stackName)
	if err != nil {
		if isStackMissing(err) {
			return stack.Handle{Name: stackName, State: stack.Absent}, nil
		}
		return stack.Handle{}, fmt.Errorf("describe stack %s: %w", stackName, err)
	}
	status := string(st.StackStatus)
	return stack.Handle{Name: stackName, State: stack.ClassifyExistence(status), RawStatus: status}, nil
}

// Create submits a CreateStack request.
func (s *CloudFormationService) Create(ctx context.Context, req Request) (string, error) {
	input := &cfn.CreateStackInput{
		StackName:          aws.String(req.StackName),
		ClientRequestToken: aws.String(req.Token),
		Capabilities:       capabilities,
		Parameters:         parameters(req),
		Tags:               tags(req.Tags),
	}
	if req.TemplateURL != "" {
		input.TemplateURL = aws.String(req.TemplateURL)
	} else {
		input.TemplateBody = aws.String(req.TemplateBody)
	}

	if _, err := s.client.CreateStack(ctx, input); err != nil {
		var exists *cfntypes.AlreadyExistsException
		if errors.As(err, &exists) {
			return "", errors.Join(ErrServiceConcurrent, err)
		}
		return "", err
	}
	s.logger.Info("stack create submitted", "stack", req.StackName, "token", req.Token)
	return req.Token, nil
}

// Update submits an UpdateStack request. "No updates are to be performed"
// is reported as a noop, not an error.
func (s *CloudFormationService) Update(ctx context.Context, req Request) (UpdateResult, error) {
	input := &cfn.UpdateStackInput{
		StackName:          aws.String(req.StackName),
		ClientRequestToken: aws.String(req.Token),
		Capabilities:       capabilities,
		Parameters:         parameters(req),
		Tags:               tags(req.Tags),
	}
	if req.TemplateURL != "" {
		input.TemplateURL = aws.String(req.TemplateURL)
	} else {
		input.TemplateBody = aws.String(req.TemplateBody)
	}

	if _, err := s.client.UpdateStack(ctx, input); err != nil {
		switch {
		case isNoUpdates(err):
			s.logger.Info("stack is up to date", "stack", req.StackName)
			return UpdateResult{Token: req.Token, Noop: true}, nil
		case isStackBusy(err):
			return UpdateResult{}, errors.Join(ErrServiceConcurrent, err)
		default:
			return UpdateResult{}, err
		}
	}
	s.logger.Info("stack update submitted", "stack", req.StackName, "token", req.Token)
	return UpdateResult{Token: req.Token}, nil
}

// PollStatus reads the stack status. For failed operations the reason is
// taken from the first failed event carrying the operation's token.
func (s *CloudFormationService) PollStatus(ctx context.Context, stackName, token string) (Status, error) {
	st, err := s.describe(ctx, stackName)
	if err != nil {
		return Status{}, fmt.Errorf("describe stack %s: %w", stackName, err)
	}

	raw := string(st.StackStatus)
	status := Status{
		State:     stack.ClassifyOperation(raw),
		RawStatus: raw,
		Reason:    aws.ToString(st.StackStatusReason),
	}
	if status.State == stack.StateFailed || status.State == stack.StateRolledBack {
		if reason := s.failureReason(ctx, stackName, token); reason != "" {
			status.Reason = reason
		}
	}
	return status, nil
}

// Outputs returns the stack outputs by key.
func (s *CloudFormationService) Outputs(ctx context.Context, stackName string) (map[string]string, error) {
	st, err := s.describe(ctx, stackName)
	if err != nil {
		return nil, fmt.Errorf("describe stack %s: %w", stackName, err)
	}
	out := make(map[string]string, len(st.Outputs))
	for _, o := range st.Outputs {
		out[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return out, nil
}

func (s *CloudFormationService) describe(ctx context.Context, stackName string) (cfntypes.Stack, error) {
	out, err := s.client.DescribeStacks(ctx, &cfn.DescribeStacksInput{StackName: aws.String(stackName)})
	if err != nil {
		return cfntypes.Stack{}, err
	}
	if len(out.Stacks) == 0 {
		return cfntypes.Stack{}, fmt.Errorf("stack %s does not exist", stackName)
	}
	return out.Stacks[0], nil
}

// failureReason returns the oldest failure reason of the operation, which
// is usually the root cause. Errors are logged and yield "".
func (s *CloudFormationService) failureReason(ctx context.Context, stackName, token string) string {
	out, err := s.client.DescribeStackEvents(ctx, &cfn.DescribeStackEventsInput{StackName: aws.String(stackName)})
	if err != nil {
		s.logger.Warn("failed to read stack events", "stack", stackName, "error", err)
		return ""
	}
	// Events are newest first.
	reason := ""
	for _, ev := range out.StackEvents {
		if token != "" && aws.ToString(ev.ClientRequestToken) != token {
			continue
		}
		if strings.HasSuffix(string(ev.ResourceStatus), "FAILED") && aws.ToString(ev.ResourceStatusReason) != "" {
			reason = fmt.Sprintf("%s: %s", aws.ToString(ev.LogicalResourceId), aws.ToString(ev.ResourceStatusReason))
		}
	}
	return reason
}

func parameters(req Request) []cfntypes.Parameter {
	if len(req.Parameters) == 0 {
		return nil
	}
	out := make([]cfntypes.Parameter, 0, len(req.Parameters))
	for _, p := range req.Parameters {
		out = append(out, cfntypes.Parameter{ParameterKey: aws.String(p.Key), ParameterValue: aws.String(p.Value)})
	}
	return out
}

func tags(m map[string]string) []cfntypes.Tag {
	if len(m) == 0 {
		return nil
	}
	out := make([]cfntypes.Tag, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, cfntypes.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return out
}

func isStackMissing(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return strings.Contains(err.Error(), "does not exist")
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) &&
		apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
}

func isStackBusy(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) &&
		apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "_IN_PROGRESS state")
}
