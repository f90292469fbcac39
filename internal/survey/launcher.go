package survey

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	ContainerInputPath  = "/opt/ml/processing/input"
	ContainerOutputPath = "/opt/ml/processing/output"
	BaseJobName         = "survey-processing"
	OutputName          = "survey_output"
)

type SageMakerClient interface {
	CreateProcessingJob(ctx context.Context, params *sagemaker.CreateProcessingJobInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateProcessingJobOutput, error)
}

type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type JobOptions struct {
	Bucket       string
	Region       string
	ImageURI     string // default <account>.dkr.ecr.<region>.amazonaws.com/survey-processor:latest
	RoleName     string // default SageMakerExecutionRole
	InstanceType string // default ml.m5.xlarge
	MaxRuntime   time.Duration
}

type Job struct {
	Name   string `json:"job_name"`
	Arn    string `json:"job_arn"`
	Role   string `json:"role"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// LaunchProcessingJob starts a SageMaker Processing job that runs the
// survey-processor container over s3://bucket/raw-data/.
func LaunchProcessingJob(ctx context.Context, sm SageMakerClient, id CallerIdentityAPI, opts JobOptions, now time.Time) (Job, error) {
	if opts.Bucket == "" {
		return Job{}, fmt.Errorf("bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.RoleName == "" {
		opts.RoleName = "SageMakerExecutionRole"
	}
	if opts.InstanceType == "" {
		opts.InstanceType = "ml.m5.xlarge"
	}
	if opts.MaxRuntime <= 0 {
		opts.MaxRuntime = time.Hour
	}

	who, err := id.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Job{}, fmt.Errorf("sts GetCallerIdentity: %w", err)
	}
	account := aws.ToString(who.Account)
	if opts.ImageURI == "" {
		opts.ImageURI = fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/survey-processor:latest", account, opts.Region)
	}

	job := Job{
		Name:   fmt.Sprintf("%s-%s", BaseJobName, now.UTC().Format("2006-01-02-15-04-05-000")),
		Role:   fmt.Sprintf("arn:aws:iam::%s:role/%s", account, opts.RoleName),
		Input:  fmt.Sprintf("s3://%s/raw-data/", opts.Bucket),
		Output: fmt.Sprintf("s3://%s/processed-data/surveys/", opts.Bucket),
	}

	out, err := sm.CreateProcessingJob(ctx, &sagemaker.CreateProcessingJobInput{
		ProcessingJobName: aws.String(job.Name),
		RoleArn:           aws.String(job.Role),
		AppSpecification: &smtypes.AppSpecification{
			ImageUri:            aws.String(opts.ImageURI),
			ContainerEntrypoint: []string{"/survey-processor"},
			ContainerArguments:  []string{"--input-path", ContainerInputPath, "--output-path", ContainerOutputPath},
		},
		ProcessingResources: &smtypes.ProcessingResources{
			ClusterConfig: &smtypes.ProcessingClusterConfig{
				InstanceCount:  aws.Int32(1),
				InstanceType:   smtypes.ProcessingInstanceType(opts.InstanceType),
				VolumeSizeInGB: aws.Int32(30),
			},
		},
		ProcessingInputs: []smtypes.ProcessingInput{{
			InputName: aws.String("input-1"),
			S3Input: &smtypes.ProcessingS3Input{
				S3Uri:                  aws.String(job.Input),
				LocalPath:              aws.String(ContainerInputPath),
				S3DataType:             smtypes.ProcessingS3DataTypeS3Prefix,
				S3InputMode:            smtypes.ProcessingS3InputModeFile,
				S3DataDistributionType: smtypes.ProcessingS3DataDistributionTypeFullyreplicated,
			},
		}},
		ProcessingOutputConfig: &smtypes.ProcessingOutputConfig{
			Outputs: []smtypes.ProcessingOutput{{
				OutputName: aws.String(OutputName),
				S3Output: &smtypes.ProcessingS3Output{
					S3Uri:        aws.String(job.Output),
					LocalPath:    aws.String(ContainerOutputPath),
					S3UploadMode: smtypes.ProcessingS3UploadModeEndOfJob,
				},
			}},
		},
		StoppingCondition: &smtypes.ProcessingStoppingCondition{
			MaxRuntimeInSeconds: aws.Int32(int32(opts.MaxRuntime / time.Second)),
		},
		Tags: []smtypes.Tag{{Key: aws.String("Project"), Value: aws.String("CustomerFeedbackAnalysis")}},
	})
	if err != nil {
		return Job{}, fmt.Errorf("sagemaker CreateProcessingJob %s: %w", job.Name, err)
	}
	job.Arn = aws.ToString(out.ProcessingJobArn)
	return job, nil
}
