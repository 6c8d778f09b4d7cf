package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// SummaryRecord is one scalar derived from a retrieved product, flattened
// for the summary sinks.
type SummaryRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Province    string    `json:"province"`
	Source      Source    `json:"source"`
	Metric      string    `json:"metric"`
	Period      string    `json:"period"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewSummaryRecord stamps a record with its deterministic ID and the
// current time. The second return is false for non-finite values, which
// cannot be serialized and carry no information.
func NewSummaryRecord(runID, province string, src Source, metric, period string, value float64, unit string) (SummaryRecord, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return SummaryRecord{}, false
	}
	return SummaryRecord{
		ID:          summaryID(province, src, metric, period),
		RunID:       runID,
		Province:    province,
		Source:      src,
		Metric:      metric,
		Period:      period,
		Value:       value,
		Unit:        unit,
		ProcessedAt: Now(),
	}, true
}

// summaryID hashes the natural key so reruns upsert instead of duplicating.
func summaryID(province string, src Source, metric, period string) string {
	input := fmt.Sprintf("%s|%s|%s|%s", province, src, metric, period)
	hash := sha256.Sum256([]byte(input))
	return string(src) + "-" + hex.EncodeToString(hash[:8])
}
