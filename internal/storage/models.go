package storage

import (
	"database/sql"
	"time"
)

// Session is one recorded monitoring run against a single receiver.
type Session struct {
	ID        int64
	StartTime time.Time
	Receiver  string
	Source    string
	Config    *string
}

// VerdictRecord is one stored classifier verdict row.
type VerdictRecord struct {
	ID        int64
	SessionID int64
	Timestamp time.Time

	Jammed     bool
	Severity   string
	Type       string
	Method     string
	Confidence float64

	Satellites         int
	TrackedSatellites  int
	AvgCN0DBHz         float64
	CN0StdDB           float64
	CN0VariationDB     float64
	AvgDopplerHz       float64
	DopplerStdHz       float64
	DopplerVariationHz float64
	Correlation        float64
}

type verdictRow struct {
	ID        int64
	SessionID int64
	Timestamp time.Time

	Jammed     bool
	Severity   string
	Type       sql.NullString
	Method     sql.NullString
	Confidence float64

	Satellites        int64
	TrackedSatellites int64
	AvgCN0            sql.NullFloat64
	CN0Std            sql.NullFloat64
	CN0Variation      sql.NullFloat64
	AvgDoppler        sql.NullFloat64
	DopplerStd        sql.NullFloat64
	DopplerVariation  sql.NullFloat64
	Correlation       sql.NullFloat64
}

func (r *verdictRow) record() *VerdictRecord {
	return &VerdictRecord{
		ID:                 r.ID,
		SessionID:          r.SessionID,
		Timestamp:          r.Timestamp,
		Jammed:             r.Jammed,
		Severity:           r.Severity,
		Type:               r.Type.String,
		Method:             r.Method.String,
		Confidence:         r.Confidence,
		Satellites:         int(r.Satellites),
		TrackedSatellites:  int(r.TrackedSatellites),
		AvgCN0DBHz:         r.AvgCN0.Float64,
		CN0StdDB:           r.CN0Std.Float64,
		CN0VariationDB:     r.CN0Variation.Float64,
		AvgDopplerHz:       r.AvgDoppler.Float64,
		DopplerStdHz:       r.DopplerStd.Float64,
		DopplerVariationHz: r.DopplerVariation.Float64,
		Correlation:        r.Correlation.Float64,
	}
}

// DetectionRecord is one stored offline detector entry. Detail carries
// the detector's full JSON result.
type DetectionRecord struct {
	ID        int64
	SessionID int64
	Timestamp time.Time

	Detector   string
	Detected   bool
	Confidence float64
	Detail     string
	Err        string
}
