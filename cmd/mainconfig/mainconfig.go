package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/ramurama/populardoctor-webapi/internal/config"
)

// awsRetryAttempts caps SDK retries per call.
const awsRetryAttempts = 4

// Services the repo talks to. Only these follow AWS_ENDPOINT_OVERRIDE.
var localstackServices = map[string]bool{
	sqs.ServiceID:      true,
	dynamodb.ServiceID: true,
	s3.ServiceID:       true,
	sesv2.ServiceID:    true,
}

// LoadAWSConfig builds the SDK config shared by the API, worker and scoring
// binaries. Static keys win over the default chain when both are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
		config.WithRetryMaxAttempts(awsRetryAttempts),
	}
	if provider := staticCredentials(cfg); provider != nil {
		opts = append(opts, config.WithCredentialsProvider(provider))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	if cfg.AWSEndpointOverride != "" {
		awsCfg.EndpointResolverWithOptions = localstackResolver(cfg.AWSEndpointOverride, cfg.AWSRegion)
	}
	return awsCfg, nil
}

func staticCredentials(cfg *appconfig.Config) aws.CredentialsProvider {
	key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if key == "" || secret == "" {
		return nil
	}
	return credentials.NewStaticCredentialsProvider(key, secret, "")
}

// localstackResolver points the repo's services at url. S3 stays path-style.
func localstackResolver(url, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(func(service, _ string, _ ...any) (aws.Endpoint, error) {
		if !localstackServices[service] {
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}
		return aws.Endpoint{
			URL:               url,
			PartitionID:       "aws",
			SigningRegion:     region,
			HostnameImmutable: service == s3.ServiceID,
		}, nil
	})
}
