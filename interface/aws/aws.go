// Package aws wraps the AWS services used to process and publish interferograms:
// S3 (results), CloudFormation and EC2 (processing instances), Batch (queued jobs) and SNS (notifications)
package aws

import (
	"context"
	"fmt"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// DefaultRegion of the processing
const DefaultRegion = "us-west-2"

// Config of the connection to AWS
// Empty fields are resolved by the default chain of the SDK (environment, shared config, instance role)
type Config struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Custom endpoint (e.g. S3-compatible storage)
}

// Clients of the AWS services
type Clients struct {
	Region         string
	S3             *S3
	CloudFormation *CloudFormation
	EC2            *EC2
	Batch          *Batch
	SNS            *SNS
}

// LoadConfig loads the configuration of the SDK
func LoadConfig(ctx context.Context, c Config) (sdk.Config, error) {
	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(c.Profile))
	}
	if c.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("LoadConfig: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// NewClients creates the clients of all the services
func NewClients(ctx context.Context, c Config) (*Clients, error) {
	cfg, err := LoadConfig(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("NewClients.%w", err)
	}
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = sdk.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Clients{
		Region:         cfg.Region,
		S3:             NewS3(s3Client, cfg.Region),
		CloudFormation: NewCloudFormation(cloudformation.NewFromConfig(cfg)),
		EC2:            NewEC2(ec2.NewFromConfig(cfg)),
		Batch:          NewBatch(batch.NewFromConfig(cfg)),
		SNS:            NewSNS(sns.NewFromConfig(cfg)),
	}, nil
}
