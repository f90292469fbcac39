package nlp

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

type PIIClient interface {
	DetectPiiEntities(ctx context.Context, params *comprehend.DetectPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error)
}

// PIIEntity offsets count characters, not bytes.
type PIIEntity struct {
	Type        string  `json:"Type"`
	Score       float32 `json:"Score"`
	BeginOffset int32   `json:"BeginOffset"`
	EndOffset   int32   `json:"EndOffset"`
}

type PIIDetector struct {
	c    PIIClient
	lang types.LanguageCode
}

func NewPIIDetector(c PIIClient) *PIIDetector {
	return &PIIDetector{c: c, lang: types.LanguageCodeEn}
}

// Entities scans the first MaxTextBytes of text.
func (d *PIIDetector) Entities(ctx context.Context, text string) ([]PIIEntity, error) {
	out, err := d.c.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(Truncate(text, MaxTextBytes)),
		LanguageCode: d.lang,
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend DetectPiiEntities: %w", err)
	}
	ents := make([]PIIEntity, 0, len(out.Entities))
	for _, e := range out.Entities {
		ents = append(ents, PIIEntity{
			Type:        string(e.Type),
			Score:       aws.ToFloat32(e.Score),
			BeginOffset: aws.ToInt32(e.BeginOffset),
			EndOffset:   aws.ToInt32(e.EndOffset),
		})
	}
	return ents, nil
}

// Redact replaces every entity span with [TYPE]. Spans that fall outside
// text or overlap a later span are left alone.
func Redact(text string, ents []PIIEntity) string {
	if len(ents) == 0 {
		return text
	}
	sorted := append([]PIIEntity(nil), ents...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BeginOffset > sorted[j].BeginOffset })

	runes := []rune(text)
	limit := len(runes)
	for _, e := range sorted {
		b, end := int(e.BeginOffset), int(e.EndOffset)
		if b < 0 || b >= end || end > limit {
			continue
		}
		out := make([]rune, 0, len(runes)-(end-b)+len(e.Type)+2)
		out = append(out, runes[:b]...)
		out = append(out, []rune("["+e.Type+"]")...)
		out = append(out, runes[end:]...)
		runes = out
		limit = b
	}
	return string(runes)
}
