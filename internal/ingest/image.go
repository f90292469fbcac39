package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	txtypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"go.uber.org/zap"

	"genaiops/internal/db"
	"genaiops/internal/objstore"
)

type TextractClient interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type RekognitionClient interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

const maxLabels = 10

type Label struct {
	Name       string  `json:"Name"`
	Confidence float32 `json:"Confidence"`
}

type TextDetection struct {
	Text       string  `json:"Text"`
	Confidence float32 `json:"Confidence"`
	Type       string  `json:"Type"`
}

type ImageMetadata struct {
	ProductID string `json:"product_id"`
}

type ProcessedImage struct {
	ImageKey      string          `json:"image_key"`
	ExtractedText string          `json:"extracted_text"`
	Labels        []Label         `json:"labels"`
	DetectedText  []TextDetection `json:"detected_text"`
	Metadata      ImageMetadata   `json:"metadata"`
}

// ImageProcessor pulls printed text (Textract) plus labels and scene text
// (Rekognition) out of product images.
type ImageProcessor struct {
	store         *objstore.Store
	textract      TextractClient
	rekognition   RekognitionClient
	records       *db.Records
	minConfidence float32
	claim         claimFunc
	logger        *zap.Logger
}

func NewImageProcessor(cfg aws.Config, c Config, logger *zap.Logger) *ImageProcessor {
	ddb := dynamodb.NewFromConfig(cfg)
	return &ImageProcessor{
		store:         objstore.New(s3.NewFromConfig(cfg)),
		textract:      textract.NewFromConfig(cfg),
		rekognition:   rekognition.NewFromConfig(cfg),
		records:       db.NewRecords(ddb, c.ProcessingTable),
		minConfidence: float32(c.MinConfidence),
		claim:         dedupeClaim(ddb, c.DedupeTable, "process-image"),
		logger:        logger,
	}
}

func (h *ImageProcessor) Handle(ctx context.Context, ev events.S3Event) (Response, error) {
	return eachObject(ctx, ev, h.claim, h.logger, h.process), nil
}

func (h *ImageProcessor) process(ctx context.Context, ref ObjectRef) Response {
	if !IsImage(ref.Key) {
		return ok("Not an image file")
	}

	out, err := h.analyze(ctx, ref)
	if err != nil {
		h.logger.Error("process image failed", zap.String("key", ref.Key), zap.Error(err))
		return failed(err)
	}

	rkey := ImageResultKey(ref.Key)
	if err := h.store.PutJSON(ctx, ref.Bucket, rkey, out); err != nil {
		h.logger.Error("store image result failed", zap.String("key", rkey), zap.Error(err))
		return failed(err)
	}
	if err := h.records.Put(ctx, db.Record{
		Kind:      db.KindImage,
		Bucket:    ref.Bucket,
		SourceKey: ref.Key,
		ResultKey: rkey,
		Status:    "processed",
	}); err != nil {
		h.logger.Warn("processing record write failed", zap.String("key", ref.Key), zap.Error(err))
	}

	h.logger.Info("image processed",
		zap.String("key", rkey),
		zap.Int("labels", len(out.Labels)),
		zap.Int("text_lines", len(out.DetectedText)),
	)
	return ok("Successfully processed image")
}

func (h *ImageProcessor) analyze(ctx context.Context, ref ObjectRef) (*ProcessedImage, error) {
	doc, err := h.textract.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &txtypes.Document{
			S3Object: &txtypes.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("textract DetectDocumentText: %w", err)
	}

	var sb strings.Builder
	for _, b := range doc.Blocks {
		if b.BlockType == txtypes.BlockTypeLine {
			sb.WriteString(aws.ToString(b.Text))
			sb.WriteString("\n")
		}
	}

	img := &rektypes.Image{
		S3Object: &rektypes.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)},
	}
	lo, err := h.rekognition.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         img,
		MaxLabels:     aws.Int32(maxLabels),
		MinConfidence: aws.Float32(h.minConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition DetectLabels: %w", err)
	}
	to, err := h.rekognition.DetectText(ctx, &rekognition.DetectTextInput{Image: img})
	if err != nil {
		return nil, fmt.Errorf("rekognition DetectText: %w", err)
	}

	labels := make([]Label, 0, len(lo.Labels))
	for _, l := range lo.Labels {
		labels = append(labels, Label{Name: aws.ToString(l.Name), Confidence: aws.ToFloat32(l.Confidence)})
	}
	lines := make([]TextDetection, 0, len(to.TextDetections))
	for _, td := range to.TextDetections {
		if td.Type != rektypes.TextTypesLine {
			continue
		}
		lines = append(lines, TextDetection{
			Text:       aws.ToString(td.DetectedText),
			Confidence: aws.ToFloat32(td.Confidence),
			Type:       string(td.Type),
		})
	}

	return &ProcessedImage{
		ImageKey:      ref.Key,
		ExtractedText: sb.String(),
		Labels:        labels,
		DetectedText:  lines,
		Metadata:      ImageMetadata{ProductID: ProductIDFromKey(ref.Key)},
	}, nil
}
