package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"go.uber.org/zap"

	"genaiops/internal/db"
	"genaiops/internal/nlp"
	"genaiops/internal/objstore"
)

// TranscribeJobDetail is the detail of a "Transcribe Job State Change"
// EventBridge event.
type TranscribeJobDetail struct {
	TranscriptionJobName   string `json:"TranscriptionJobName"`
	TranscriptionJobStatus string `json:"TranscriptionJobStatus"`
}

type transcriptDoc struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		SpeakerLabels struct {
			Segments []json.RawMessage `json:"segments"`
		} `json:"speaker_labels"`
	} `json:"results"`
}

type CallMetadata struct {
	JobName  string `json:"job_name"`
	Duration int32  `json:"duration"`
}

type ProcessedCall struct {
	AudioKey        string              `json:"audio_key"`
	Transcript      string              `json:"transcript"`
	Speakers        []json.RawMessage   `json:"speakers"`
	Sentiment       string              `json:"sentiment"`
	SentimentScores nlp.SentimentScores `json:"sentiment_scores"`
	KeyPhrases      []nlp.KeyPhrase     `json:"key_phrases"`
	Metadata        CallMetadata        `json:"metadata"`
}

type TranscriptionCompleter struct {
	store      *objstore.Store
	transcribe TranscribeClient
	nlp        *nlp.Analyzer
	records    *db.Records
	logger     *zap.Logger
}

func NewTranscriptionCompleter(cfg aws.Config, c Config, logger *zap.Logger) *TranscriptionCompleter {
	return &TranscriptionCompleter{
		store:      objstore.New(s3.NewFromConfig(cfg)),
		transcribe: transcribe.NewFromConfig(cfg),
		nlp:        nlp.NewAnalyzer(comprehend.NewFromConfig(cfg)),
		records:    db.NewRecords(dynamodb.NewFromConfig(cfg), c.ProcessingTable),
		logger:     logger,
	}
}

func (h *TranscriptionCompleter) Handle(ctx context.Context, ev events.CloudWatchEvent) (Response, error) {
	var d TranscribeJobDetail
	if len(ev.Detail) > 0 {
		if err := json.Unmarshal(ev.Detail, &d); err != nil {
			return failed(fmt.Errorf("decode event detail: %w", err)), nil
		}
	}
	if d.TranscriptionJobStatus != "COMPLETED" {
		h.logger.Warn("transcription job not completed",
			zap.String("job", d.TranscriptionJobName),
			zap.String("status", d.TranscriptionJobStatus),
		)
		return ok("Job not completed: " + d.TranscriptionJobStatus), nil
	}

	if err := h.complete(ctx, d.TranscriptionJobName); err != nil {
		h.logger.Error("process transcription failed", zap.String("job", d.TranscriptionJobName), zap.Error(err))
		return failed(err), nil
	}
	return ok("Successfully processed audio"), nil
}

func (h *TranscriptionCompleter) complete(ctx context.Context, jobName string) error {
	jo, err := h.transcribe.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	if err != nil {
		return fmt.Errorf("transcribe GetTranscriptionJob: %w", err)
	}
	job := jo.TranscriptionJob
	if job == nil || job.Transcript == nil {
		return errors.New("transcription job has no transcript")
	}

	bucket, key, err := objstore.ParseURI(aws.ToString(job.Transcript.TranscriptFileUri))
	if err != nil {
		return err
	}

	var doc transcriptDoc
	if err := h.store.GetJSON(ctx, bucket, key, &doc); err != nil {
		return err
	}
	if len(doc.Results.Transcripts) == 0 {
		return fmt.Errorf("transcript %s has no transcripts", key)
	}
	text := doc.Results.Transcripts[0].Transcript

	sent, err := h.nlp.Sentiment(ctx, text)
	if err != nil {
		return err
	}
	kps, err := h.nlp.KeyPhrases(ctx, text)
	if err != nil {
		return err
	}

	audioKey := ""
	if job.Media != nil {
		audioKey = aws.ToString(job.Media.MediaFileUri)
	}
	speakers := doc.Results.SpeakerLabels.Segments
	if speakers == nil {
		speakers = []json.RawMessage{}
	}

	out := ProcessedCall{
		AudioKey:        audioKey,
		Transcript:      text,
		Speakers:        speakers,
		Sentiment:       sent.Label,
		SentimentScores: sent.Scores,
		KeyPhrases:      kps,
		Metadata: CallMetadata{
			JobName:  jobName,
			Duration: aws.ToInt32(job.MediaSampleRateHertz),
		},
	}

	rkey := AudioResultKey(jobName)
	if err := h.store.PutJSON(ctx, bucket, rkey, out); err != nil {
		return err
	}
	if err := h.records.Put(ctx, db.Record{
		Kind:      db.KindAudio,
		Bucket:    bucket,
		SourceKey: key,
		ResultKey: rkey,
		Status:    "processed",
	}); err != nil {
		h.logger.Warn("processing record write failed", zap.String("key", key), zap.Error(err))
	}

	h.logger.Info("transcription processed", zap.String("key", rkey), zap.String("sentiment", sent.Label))
	return nil
}
