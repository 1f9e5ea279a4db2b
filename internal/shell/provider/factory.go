package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	coreprovider "github.com/artpar/stackdeploy/internal/core/provider"
)

// LoadAWSConfig builds an aws.Config for region from the configured
// credential source: static keys, a shared profile, or the default chain.
func LoadAWSConfig(ctx context.Context, creds coreprovider.AWSCredentials, region string) (aws.Config, error) {
	if err := coreprovider.ValidateAWSCredentials(creds); err != nil {
		return aws.Config{}, fmt.Errorf("invalid AWS credentials: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	switch {
	case creds.IsStatic():
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	case creds.Profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(creds.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
