package ingest

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	trtypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"genaiops/internal/objstore"
)

type TranscribeClient interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// Customer and agent.
const maxSpeakers = 2

type AudioJobMetadata struct {
	TranscriptionJobName string `json:"transcription_job_name"`
	AudioKey             string `json:"audio_key"`
	OutputKey            string `json:"output_key"`
	Bucket               string `json:"bucket"`
}

type TranscriptionStarted struct {
	Message   string `json:"message"`
	JobName   string `json:"job_name"`
	OutputKey string `json:"output_key"`
}

// TranscriptionStarter kicks off a Transcribe job for each uploaded call
// recording. TranscriptionCompleter picks the result up.
type TranscriptionStarter struct {
	store      *objstore.Store
	transcribe TranscribeClient
	claim      claimFunc
	newJobName func() string
	logger     *zap.Logger
}

func NewTranscriptionStarter(cfg aws.Config, c Config, logger *zap.Logger) *TranscriptionStarter {
	return &TranscriptionStarter{
		store:      objstore.New(s3.NewFromConfig(cfg)),
		transcribe: transcribe.NewFromConfig(cfg),
		claim:      dedupeClaim(dynamodb.NewFromConfig(cfg), c.DedupeTable, "start-transcription"),
		newJobName: func() string { return "transcribe-" + uuid.NewString() },
		logger:     logger,
	}
}

func (h *TranscriptionStarter) Handle(ctx context.Context, ev events.S3Event) (Response, error) {
	return eachObject(ctx, ev, h.claim, h.logger, h.start), nil
}

func (h *TranscriptionStarter) start(ctx context.Context, ref ObjectRef) Response {
	if !IsAudio(ref.Key) {
		return ok("Not an audio file")
	}

	job := h.newJobName()
	outKey := TranscriptKey(ref.Key)

	_, err := h.transcribe.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(job),
		Media:                &trtypes.Media{MediaFileUri: aws.String(fmt.Sprintf("s3://%s/%s", ref.Bucket, ref.Key))},
		MediaFormat:          trtypes.MediaFormat(MediaFormat(ref.Key)),
		LanguageCode:         trtypes.LanguageCodeEnUs,
		OutputBucketName:     aws.String(ref.Bucket),
		OutputKey:            aws.String(outKey),
		Settings: &trtypes.Settings{
			ShowSpeakerLabels: aws.Bool(true),
			MaxSpeakerLabels:  aws.Int32(maxSpeakers),
		},
	})
	if err != nil {
		h.logger.Error("start transcription failed", zap.String("key", ref.Key), zap.Error(err))
		return failed(fmt.Errorf("transcribe StartTranscriptionJob: %w", err))
	}

	meta := AudioJobMetadata{
		TranscriptionJobName: job,
		AudioKey:             ref.Key,
		OutputKey:            outKey,
		Bucket:               ref.Bucket,
	}
	if err := h.store.PutJSON(ctx, ref.Bucket, AudioMetadataKey(ref.Key), meta); err != nil {
		h.logger.Error("store job metadata failed", zap.String("job", job), zap.Error(err))
		return failed(err)
	}

	h.logger.Info("transcription job started",
		zap.String("job", job),
		zap.String("output", fmt.Sprintf("s3://%s/%s", ref.Bucket, outKey)),
	)
	return ok(TranscriptionStarted{Message: "Transcription job started", JobName: job, OutputKey: outKey})
}
