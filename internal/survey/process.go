// Package survey turns raw customer survey CSV exports into per-customer
// summaries and aggregate statistics.
package survey

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	colCustomerID          = "customer_id"
	colSurveyDate          = "survey_date"
	colOverallSatisfaction = "overall_satisfaction"
	colProductRating       = "product_rating"
	colServiceRating       = "service_rating"
	colImprovementArea     = "improvement_area"
	colComments            = "comments"
)

var ratingScale = map[string]float64{
	"Very Dissatisfied": 1,
	"Dissatisfied":      2,
	"Neutral":           3,
	"Satisfied":         4,
	"Very Satisfied":    5,
}

// Row is one cleaned survey response. Rating columns hold numbers where the
// raw value was a known label or a numeric string.
type Row struct {
	values  map[string]string
	ratings map[string]float64
}

func (r Row) Get(col string) string { return r.values[col] }

func (r Row) Rating(col string) (float64, bool) {
	v, ok := r.ratings[col]
	return v, ok
}

type Summary struct {
	CustomerID  string              `json:"customer_id"`
	SurveyDate  string              `json:"survey_date"`
	SummaryText string              `json:"summary_text"`
	Ratings     map[string]*float64 `json:"ratings"`
	Comments    string              `json:"comments"`
}

type Count struct {
	Value string
	N     int
}

// Counts marshals as a JSON object that keeps its ranking order.
type Counts []Count

func (c Counts) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, kv := range c {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(kv.N))
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (c *Counts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := Counts{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		var n int
		if err := dec.Decode(&n); err != nil {
			return err
		}
		out = append(out, Count{Value: tok.(string), N: n})
	}
	*c = out
	return nil
}

type Stats struct {
	TotalSurveys          int     `json:"total_surveys"`
	AvgSatisfaction       float64 `json:"avg_satisfaction"`
	SentimentDistribution Counts  `json:"sentiment_distribution"`
	TopIssues             Counts  `json:"top_issues"`
}

type Result struct {
	Columns   []string
	Rows      []Row
	Summaries []Summary
	Stats     Stats
}

// IsRatingColumn reports whether a column carries a satisfaction scale.
func IsRatingColumn(col string) bool {
	c := strings.ToLower(col)
	return strings.Contains(c, "rating") || strings.Contains(c, "satisfaction")
}

// Process reads a survey CSV with a header row.
func Process(r io.Reader) (*Result, error) {
	rows, cols, err := readRows(r)
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, Rows: rows}
	res.Stats = computeStats(cols, rows)
	res.Summaries = make([]Summary, 0, len(rows))
	for _, row := range rows {
		res.Summaries = append(res.Summaries, summarize(cols, row))
	}
	return res, nil
}

func readRows(r io.Reader) ([]Row, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("survey csv is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read survey header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read survey line %d: %w", line, err)
		}
		row := Row{values: map[string]string{}, ratings: map[string]float64{}}
		for i, col := range cols {
			if i < len(rec) {
				row.values[col] = strings.TrimSpace(rec[i])
			}
		}
		if row.values[colCustomerID] == "" || row.values[colSurveyDate] == "" {
			continue
		}
		for _, col := range cols {
			if !IsRatingColumn(col) {
				continue
			}
			if v, ok := parseRating(row.values[col]); ok {
				row.ratings[col] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, cols, nil
}

func parseRating(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	if v, ok := ratingScale[s]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

func computeStats(cols []string, rows []Row) Stats {
	st := Stats{
		TotalSurveys:          len(rows),
		SentimentDistribution: Counts{},
		TopIssues:             Counts{},
	}

	if hasColumn(cols, colOverallSatisfaction) {
		var sum float64
		var n int
		var raw []string
		for _, row := range rows {
			if v, ok := row.Rating(colOverallSatisfaction); ok {
				sum += v
				n++
				raw = append(raw, formatNumber(v))
			} else if s := row.Get(colOverallSatisfaction); s != "" {
				raw = append(raw, s)
			}
		}
		if n > 0 {
			st.AvgSatisfaction = sum / float64(n)
		}
		st.SentimentDistribution = rank(raw)
	}

	if hasColumn(cols, colImprovementArea) {
		var areas []string
		for _, row := range rows {
			if s := row.Get(colImprovementArea); s != "" {
				areas = append(areas, s)
			}
		}
		issues := rank(areas)
		if len(issues) > 3 {
			issues = issues[:3]
		}
		st.TopIssues = issues
	}
	return st
}

// rank counts values, most frequent first, ties in first-seen order.
func rank(values []string) Counts {
	idx := map[string]int{}
	out := Counts{}
	for _, v := range values {
		if i, ok := idx[v]; ok {
			out[i].N++
			continue
		}
		idx[v] = len(out)
		out = append(out, Count{Value: v, N: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].N > out[j].N })
	return out
}

func satisfactionLevel(row Row) string {
	v, ok := row.Rating(colOverallSatisfaction)
	if !ok {
		return "satisfied"
	}
	switch {
	case v >= 4:
		return "satisfied"
	case v == 3:
		return "neutral"
	default:
		return "dissatisfied"
	}
}

func ratingText(row Row, col string) (string, bool) {
	if v, ok := row.Rating(col); ok {
		return formatNumber(v), true
	}
	if s := row.Get(col); s != "" {
		return s, true
	}
	return "", false
}

// SummaryText renders the one-paragraph narrative for a response.
func SummaryText(row Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer %s was %s overall with their experience. ", row.Get(colCustomerID), satisfactionLevel(row))
	if s, ok := ratingText(row, colProductRating); ok {
		fmt.Fprintf(&b, "They rated the product %s/5. ", s)
	}
	if s, ok := ratingText(row, colServiceRating); ok {
		fmt.Fprintf(&b, "They rated the customer service %s/5. ", s)
	}
	if s := row.Get(colImprovementArea); s != "" {
		fmt.Fprintf(&b, "They suggested improvements in the area of %s. ", s)
	}
	if s := row.Get(colComments); s != "" {
		fmt.Fprintf(&b, "Their comments: '%s'", s)
	}
	return b.String()
}

func summarize(cols []string, row Row) Summary {
	s := Summary{
		CustomerID:  row.Get(colCustomerID),
		SurveyDate:  row.Get(colSurveyDate),
		SummaryText: SummaryText(row),
		Ratings:     map[string]*float64{},
		Comments:    row.Get(colComments),
	}
	for _, col := range cols {
		if !IsRatingColumn(col) || row.Get(col) == "" {
			continue
		}
		if v, ok := row.Rating(col); ok {
			s.Ratings[col] = &v
		} else {
			s.Ratings[col] = nil
		}
	}
	return s
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
