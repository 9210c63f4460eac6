package aws

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// CloudFormationAPI is the subset of the CloudFormation client used by CloudFormation
type CloudFormationAPI interface {
	cloudformation.DescribeStacksAPIClient
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// CloudFormation creates and deletes processing stacks
type CloudFormation struct {
	client CloudFormationAPI
}

// NewCloudFormation creates a new CloudFormation
func NewCloudFormation(client CloudFormationAPI) *CloudFormation {
	return &CloudFormation{client: client}
}

// CreateStack creates the stack from the template body and returns its id.
// If wait > 0, CreateStack waits for the creation to complete (at most wait)
func (cf *CloudFormation) CreateStack(ctx context.Context, name, templateBody string, wait time.Duration) (string, error) {
	out, err := cf.client.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    sdk.String(name),
		TemplateBody: sdk.String(templateBody),
		OnFailure:    cftypes.OnFailureDelete,
		Tags:         []cftypes.Tag{{Key: sdk.String("project"), Value: sdk.String("dinoSARaws")}},
	})
	if err != nil {
		return "", fmt.Errorf("CreateStack[%s]: %w", name, err)
	}
	stackID := sdk.ToString(out.StackId)
	log.Logger(ctx).Sugar().Infof("stack %s created (%s)", name, stackID)

	if wait > 0 {
		waiter := cloudformation.NewStackCreateCompleteWaiter(cf.client)
		if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: sdk.String(name)}, wait); err != nil {
			return stackID, fmt.Errorf("CreateStack[%s].Wait: %w", name, err)
		}
		log.Logger(ctx).Sugar().Infof("stack %s ready", name)
	}
	return stackID, nil
}

// DeleteStack deletes the stack
func (cf *CloudFormation) DeleteStack(ctx context.Context, name string) error {
	if _, err := cf.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{StackName: sdk.String(name)}); err != nil {
		return fmt.Errorf("DeleteStack[%s]: %w", name, err)
	}
	return nil
}

// EC2API is the subset of the EC2 client used by EC2
type EC2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
}

// EC2 launches processing instances
type EC2 struct {
	client EC2API
}

// NewEC2 creates a new EC2
func NewEC2(client EC2API) *EC2 {
	return &EC2{client: client}
}

// Instance to launch
type Instance struct {
	Name             string
	ImageID          string
	InstanceType     string
	KeyName          string
	SecurityGroupIDs []string
	DataVolumeGB     int32
	UserData         string // Base64 encoded
	Spot             bool
}

// RunInstance launches the instance and returns its id.
// The instance is terminated when it shuts down
func (e *EC2) RunInstance(ctx context.Context, inst Instance) (string, error) {
	input := &ec2.RunInstancesInput{
		ImageId:                           sdk.String(inst.ImageID),
		InstanceType:                      ec2types.InstanceType(inst.InstanceType),
		MinCount:                          sdk.Int32(1),
		MaxCount:                          sdk.Int32(1),
		SecurityGroupIds:                  inst.SecurityGroupIDs,
		UserData:                          sdk.String(inst.UserData),
		InstanceInitiatedShutdownBehavior: ec2types.ShutdownBehaviorTerminate,
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         []ec2types.Tag{{Key: sdk.String("Name"), Value: sdk.String(inst.Name)}},
		}},
	}
	if inst.KeyName != "" {
		input.KeyName = sdk.String(inst.KeyName)
	}
	if inst.DataVolumeGB > 0 {
		input.BlockDeviceMappings = []ec2types.BlockDeviceMapping{{
			DeviceName: sdk.String(DataDevice),
			Ebs: &ec2types.EbsBlockDevice{
				VolumeType:          ec2types.VolumeTypeGp2,
				VolumeSize:          sdk.Int32(inst.DataVolumeGB),
				DeleteOnTermination: sdk.Bool(true),
			},
		}}
	}
	if inst.Spot {
		input.InstanceMarketOptions = &ec2types.InstanceMarketOptionsRequest{MarketType: ec2types.MarketTypeSpot}
	}
	out, err := e.client.RunInstances(ctx, input)
	if err != nil {
		return "", fmt.Errorf("RunInstance[%s]: %w", inst.Name, err)
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("RunInstance[%s]: no instance launched", inst.Name)
	}
	id := sdk.ToString(out.Instances[0].InstanceId)
	log.Logger(ctx).Sugar().Infof("instance %s launched (%s)", inst.Name, id)
	return id, nil
}

// DataDevice is the device name of the data volume of the processing instances
const DataDevice = "/dev/xvdf"

// BatchAPI is the subset of the Batch client used by Batch
type BatchAPI interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
}

// Batch submits jobs to an AWS Batch queue
type Batch struct {
	client BatchAPI
}

// NewBatch creates a new Batch
func NewBatch(client BatchAPI) *Batch {
	return &Batch{client: client}
}

// Job to submit
type Job struct {
	Name        string
	Queue       string
	Definition  string
	Command     []string
	Environment map[string]string
}

// SubmitJob submits the job and returns its id
func (b *Batch) SubmitJob(ctx context.Context, job Job) (string, error) {
	overrides := &batchtypes.ContainerOverrides{Command: job.Command}
	for k, v := range job.Environment {
		overrides.Environment = append(overrides.Environment, batchtypes.KeyValuePair{Name: sdk.String(k), Value: sdk.String(v)})
	}
	out, err := b.client.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:            sdk.String(job.Name),
		JobQueue:           sdk.String(job.Queue),
		JobDefinition:      sdk.String(job.Definition),
		ContainerOverrides: overrides,
	})
	if err != nil {
		return "", fmt.Errorf("SubmitJob[%s]: %w", job.Name, err)
	}
	id := sdk.ToString(out.JobId)
	log.Logger(ctx).Sugar().Infof("job %s submitted to %s (%s)", job.Name, job.Queue, id)
	return id, nil
}

// SNSAPI is the subset of the SNS client used by SNS
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS sends notifications
type SNS struct {
	client SNSAPI
}

// NewSNS creates a new SNS
func NewSNS(client SNSAPI) *SNS {
	return &SNS{client: client}
}

// maxSNSMessage is the maximum size of a SNS message
const maxSNSMessage = 256 * 1024

// Notify publishes a message on the topic. Long messages are truncated, keeping the end
func (s *SNS) Notify(ctx context.Context, topicArn, subject, message string) error {
	if len(message) > maxSNSMessage {
		message = message[len(message)-maxSNSMessage:]
	}
	if len(subject) > 100 {
		subject = subject[:100]
	}
	if _, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: sdk.String(topicArn),
		Subject:  sdk.String(subject),
		Message:  sdk.String(message),
	}); err != nil {
		return fmt.Errorf("Notify[%s]: %w", topicArn, err)
	}
	return nil
}
