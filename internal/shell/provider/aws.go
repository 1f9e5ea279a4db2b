package provider

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	coreprovider "github.com/artpar/stackdeploy/internal/core/provider"
)

// STSAPI is the subset of the STS client used by the probe.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// EC2API is the subset of the EC2 client used by the probe.
type EC2API interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

var (
	_ STSAPI = (*sts.Client)(nil)
	_ EC2API = (*ec2.Client)(nil)
	_ Prober = (*AWSProvider)(nil)
)

// AWSProvider implements Prober against STS and EC2.
type AWSProvider struct {
	sts    STSAPI
	ec2    EC2API
	logger *slog.Logger
}

// NewAWSProvider creates a probe from an AWS config.
func NewAWSProvider(cfg aws.Config, logger *slog.Logger) *AWSProvider {
	return NewAWSProviderWithClients(sts.NewFromConfig(cfg), ec2.NewFromConfig(cfg), logger)
}

// NewAWSProviderWithClients creates a probe from explicit clients.
func NewAWSProviderWithClients(stsClient STSAPI, ec2Client EC2API, logger *slog.Logger) *AWSProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &AWSProvider{
		sts:    stsClient,
		ec2:    ec2Client,
		logger: logger.With("provider", "aws"),
	}
}

// CallerIdentity resolves the account behind the configured credentials.
func (p *AWSProvider) CallerIdentity(ctx context.Context) (Identity, error) {
	out, err := p.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrNoCredentials, err)
	}
	id := Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
	}
	p.logger.Debug("resolved caller identity", "account", id.Account, "arn", id.ARN)
	return id, nil
}

// ListRegions returns enabled AWS regions.
func (p *AWSProvider) ListRegions(ctx context.Context) ([]coreprovider.Region, error) {
	out, err := p.ec2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("opt-in-status"), Values: []string{"opt-in-not-required", "opted-in"}},
		},
	})
	if err != nil {
		// Fall back to static catalog
		p.logger.Warn("failed to list regions, using static catalog", "error", err)
		return coreprovider.AWSRegions(), nil
	}

	regions := make([]coreprovider.Region, 0, len(out.Regions))
	for _, r := range out.Regions {
		regions = append(regions, coreprovider.Region{
			ID:        aws.ToString(r.RegionName),
			Name:      aws.ToString(r.RegionName),
			Available: true,
		})
	}
	slices.SortFunc(regions, func(a, b coreprovider.Region) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return regions, nil
}
