package jobs

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/scottyhq/dinoSARaws/interface/aws"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// Submitter launches the processing of an interferogram and returns an identifier of the processing
type Submitter interface {
	Submit(ctx context.Context, p Params) (string, error)
}

// StackCreator creates CloudFormation stacks (see aws.CloudFormation)
type StackCreator interface {
	CreateStack(ctx context.Context, name, templateBody string, wait time.Duration) (string, error)
}

// InstanceRunner launches EC2 instances (see aws.EC2)
type InstanceRunner interface {
	RunInstance(ctx context.Context, inst aws.Instance) (string, error)
}

// JobSubmitter submits AWS Batch jobs (see aws.Batch)
type JobSubmitter interface {
	SubmitJob(ctx context.Context, job aws.Job) (string, error)
}

// BucketUploader creates buckets and uploads files (see aws.S3)
type BucketUploader interface {
	MakeBucket(ctx context.Context, bucket string) error
	UploadFile(ctx context.Context, file, bucket, key string) error
}

// PrintSubmitter writes the CloudFormation template in Dir and prints the command to launch it
type PrintSubmitter struct {
	Dir string
	Out io.Writer
}

// Submit implements Submitter. Returns the path of the template
func (s PrintSubmitter) Submit(ctx context.Context, p Params) (string, error) {
	file, err := WriteCloudFormation(p, s.Dir)
	if err != nil {
		return "", fmt.Errorf("PrintSubmitter.%w", err)
	}
	if s.Out != nil {
		fmt.Fprintf(s.Out, "aws cloudformation create-stack --stack-name %s --template-body file://%s\n", p.StackName(), file)
	}
	return file, nil
}

// WriteCloudFormation writes the template in dir as proc-<main>-<secondary>.yml and returns its path
func WriteCloudFormation(p Params, dir string) (string, error) {
	body, err := CloudFormation(p)
	if err != nil {
		return "", fmt.Errorf("WriteCloudFormation.%w", err)
	}
	file := filepath.Join(dir, p.TemplateFile())
	if err := os.WriteFile(file, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("WriteCloudFormation: %w", err)
	}
	return file, nil
}

// CloudFormationSubmitter creates a stack per interferogram. The stack deletes itself at the end of the processing.
type CloudFormationSubmitter struct {
	Client StackCreator
	Wait   time.Duration // Wait for the creation of the stack (0: do not wait)
}

// Submit implements Submitter. Returns the id of the stack
func (s CloudFormationSubmitter) Submit(ctx context.Context, p Params) (string, error) {
	body, err := CloudFormation(p)
	if err != nil {
		return "", fmt.Errorf("CloudFormationSubmitter.%w", err)
	}
	id, err := s.Client.CreateStack(ctx, p.StackName(), body, s.Wait)
	if err != nil {
		return "", fmt.Errorf("CloudFormationSubmitter.%w", err)
	}
	return id, nil
}

// EC2Submitter launches an instance per interferogram. The instance terminates at the end of the processing.
type EC2Submitter struct {
	Client InstanceRunner
	Spot   bool
}

// Submit implements Submitter. Returns the id of the instance
func (s EC2Submitter) Submit(ctx context.Context, p Params) (string, error) {
	script, err := InstanceUserData(p)
	if err != nil {
		return "", fmt.Errorf("EC2Submitter.%w", err)
	}
	inst := aws.Instance{
		Name:         p.StackName(),
		ImageID:      p.ImageID,
		InstanceType: p.InstanceType,
		KeyName:      p.KeyName,
		DataVolumeGB: int32(p.DataVolumeGB),
		UserData:     base64.StdEncoding.EncodeToString([]byte(script)),
		Spot:         s.Spot,
	}
	if p.SecurityGroup != "" {
		inst.SecurityGroupIDs = []string{p.SecurityGroup}
	}
	id, err := s.Client.RunInstance(ctx, inst)
	if err != nil {
		return "", fmt.Errorf("EC2Submitter.%w", err)
	}
	return id, nil
}

// BatchSubmitter creates the bucket of the interferogram, uploads the script and submits an AWS Batch job that runs it
type BatchSubmitter struct {
	Storage BucketUploader
	Batch   JobSubmitter
	Dir     string // Local directory of the scripts
}

// Submit implements Submitter. Returns the id of the job
func (s BatchSubmitter) Submit(ctx context.Context, p Params) (string, error) {
	if p.Queue == "" {
		return "", service.MakeFatal(fmt.Errorf("BatchSubmitter: missing job queue"))
	}
	script, err := BatchScript(p)
	if err != nil {
		return "", fmt.Errorf("BatchSubmitter.%w", err)
	}
	file := filepath.Join(s.Dir, p.ScriptFile())
	if err := os.WriteFile(file, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("BatchSubmitter: %w", err)
	}

	bucket := p.IntName()
	if err := s.Storage.MakeBucket(ctx, bucket); err != nil {
		return "", fmt.Errorf("BatchSubmitter.%w", err)
	}
	if err := s.Storage.UploadFile(ctx, file, bucket, p.ScriptFile()); err != nil {
		return "", fmt.Errorf("BatchSubmitter.%w", err)
	}

	id, err := s.Batch.SubmitJob(ctx, aws.Job{
		Name:       p.StackName(),
		Queue:      p.Queue,
		Definition: p.JobDefinition,
		Command:    []string{"bash", "-c", fmt.Sprintf("aws s3 cp s3://%s/%s - | bash", bucket, p.ScriptFile())},
		Environment: map[string]string{
			"INTERFEROGRAM": p.IntName(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("BatchSubmitter.%w", err)
	}
	return id, nil
}

// SubmitAll submits the processing of each params and returns the identifiers.
// Submission stops at the first error
func SubmitAll(ctx context.Context, s Submitter, params []Params) ([]string, error) {
	ids := make([]string, 0, len(params))
	for _, p := range params {
		id, err := s.Submit(ctx, p)
		if err != nil {
			return ids, fmt.Errorf("SubmitAll[%s].%w", p.IntName(), err)
		}
		log.Logger(ctx).Sugar().Infof("%s submitted: %s", p.IntName(), id)
		ids = append(ids, id)
	}
	return ids, nil
}
