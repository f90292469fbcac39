package survey

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"genaiops/internal/lake"
)

const (
	SummariesFile  = "survey_summaries.json"
	StatisticsFile = "survey_statistics.json"
	ParquetFile    = "survey_summaries.parquet"
)

type SummaryRow struct {
	CustomerID          string  `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SurveyDate          string  `parquet:"name=survey_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	OverallSatisfaction float64 `parquet:"name=overall_satisfaction, type=DOUBLE"`
	ProductRating       float64 `parquet:"name=product_rating, type=DOUBLE"`
	ServiceRating       float64 `parquet:"name=service_rating, type=DOUBLE"`
	ImprovementArea     string  `parquet:"name=improvement_area, type=BYTE_ARRAY, convertedtype=UTF8"`
	SummaryText         string  `parquet:"name=summary_text, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ParquetRows flattens results for the lake table. Missing ratings are 0.
func (r *Result) ParquetRows() []SummaryRow {
	out := make([]SummaryRow, 0, len(r.Rows))
	for i, row := range r.Rows {
		sr := SummaryRow{
			CustomerID:      row.Get(colCustomerID),
			SurveyDate:      row.Get(colSurveyDate),
			ImprovementArea: row.Get(colImprovementArea),
		}
		sr.OverallSatisfaction, _ = row.Rating(colOverallSatisfaction)
		sr.ProductRating, _ = row.Rating(colProductRating)
		sr.ServiceRating, _ = row.Rating(colServiceRating)
		if i < len(r.Summaries) {
			sr.SummaryText = r.Summaries[i].SummaryText
		}
		out = append(out, sr)
	}
	return out
}

type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// Artifacts renders the files written for a processed survey batch.
func (r *Result) Artifacts() ([]Artifact, error) {
	summaries, err := json.MarshalIndent(r.Summaries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summaries: %w", err)
	}
	stats, err := json.MarshalIndent(r.Stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}
	pq, err := lake.Encode(r.ParquetRows())
	if err != nil {
		return nil, err
	}
	return []Artifact{
		{Name: SummariesFile, ContentType: "application/json", Body: summaries},
		{Name: StatisticsFile, ContentType: "application/json", Body: stats},
		{Name: ParquetFile, ContentType: "application/octet-stream", Body: pq},
	}, nil
}

// ProcessDir reads surveys.csv from inputDir and writes the artifacts into
// outputDir. It is the entrypoint of the processing container.
func ProcessDir(inputDir, outputDir string) (*Result, error) {
	f, err := os.Open(filepath.Join(inputDir, "surveys.csv"))
	if err != nil {
		return nil, fmt.Errorf("open surveys.csv: %w", err)
	}
	defer f.Close()

	res, err := Process(f)
	if err != nil {
		return nil, err
	}
	arts, err := res.Artifacts()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	for _, a := range arts {
		if err := os.WriteFile(filepath.Join(outputDir, a.Name), a.Body, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", a.Name, err)
		}
	}
	return res, nil
}
