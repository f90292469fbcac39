package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"genaiops/internal/objstore"
	"genaiops/internal/objstore/objstoretest"
	"genaiops/internal/survey"
)

func TestIsSurveyExport(t *testing.T) {
	assert.True(t, IsSurveyExport("raw-data/surveys.csv"))
	assert.True(t, IsSurveyExport("raw-data/2024/Surveys-jan.csv"))
	assert.False(t, IsSurveyExport("raw-data/reviews.csv"))
	assert.False(t, IsSurveyExport("processed-data/surveys.csv"))
}

func TestSurveyProcessorWritesArtifacts(t *testing.T) {
	mem := objstoretest.NewMemory()
	mem.Put(bucket, "raw-data/surveys.csv", []byte("customer_id,survey_date,overall_satisfaction,improvement_area\nC1,2024-01-01,Satisfied,Shipping\nC2,2024-01-02,Neutral,Pricing\n"))
	h := &SurveyProcessor{store: objstore.New(mem), logger: zap.NewNop()}

	resp, err := h.Handle(context.Background(), s3Event("raw-data/surveys.csv"))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode, resp.Body)

	var out SurveyProcessed
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	assert.Equal(t, SurveyOutputPrefix, out.OutputPrefix)
	assert.Equal(t, 2, out.Stats.TotalSurveys)
	assert.InDelta(t, 3.5, out.Stats.AvgSatisfaction, 1e-9)

	for _, name := range []string{survey.SummariesFile, survey.StatisticsFile, survey.ParquetFile} {
		_, ok := mem.Object(bucket, "processed-data/surveys/"+name)
		assert.True(t, ok, name)
	}
	assert.Equal(t, "application/json", mem.ContentType(bucket, "processed-data/surveys/"+survey.StatisticsFile))
}

func TestSurveyProcessorIgnoresOtherKeys(t *testing.T) {
	h := &SurveyProcessor{store: objstore.New(objstoretest.NewMemory()), logger: zap.NewNop()}
	resp, err := h.Handle(context.Background(), s3Event("raw-data/r1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Not a survey export", bodyString(t, resp))
}
