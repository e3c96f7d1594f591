package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Summary rolls the individual detector verdicts into one answer.
type Summary struct {
	JammingDetected bool    `json:"jamming_detected"`
	PrimaryThreat   Kind    `json:"primary_threat,omitempty"`
	MaxConfidence   float64 `json:"max_confidence"`
}

// Report is the complete output of one analysis run, in the wire
// format consumed by downstream tooling.
type Report struct {
	Timestamp         time.Time       `json:"timestamp"`
	SampleRate        float64         `json:"sample_rate"`
	CenterFrequencyHz float64         `json:"center_frequency_hz"`
	DurationSec       float64         `json:"duration_sec"`
	Detections        map[Kind]Result `json:"detections"`
	Summary           Summary         `json:"summary"`
}

// Bank runs a set of detectors against one input and assembles the
// report. A detector failure is isolated: its entry carries the error
// and the rest of the bank still reports.
type Bank struct {
	detectors []Detector
	logger    *slog.Logger
}

// BankOption configures a Bank.
type BankOption func(*Bank)

// WithBankLogger sets the logger used to report detector failures.
func WithBankLogger(logger *slog.Logger) BankOption {
	return func(b *Bank) {
		b.logger = logger
	}
}

// NewBank creates a bank over the given detectors. With no detectors
// given it holds the full production set.
func NewBank(detectors []Detector, options ...BankOption) *Bank {
	if len(detectors) == 0 {
		detectors = []Detector{
			NewSweepDetector(),
			NewPulseDetector(),
			NewNoiseFloorDetector(),
			NewNarrowbandCWDetector(),
			NewMeaconingDetector(),
		}
	}
	b := &Bank{
		detectors: detectors,
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Analyze runs every detector concurrently and assembles the report.
// The context bounds the run as a whole; detectors that have already
// started still finish.
func (b *Bank) Analyze(ctx context.Context, in Input) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		Timestamp:  time.Now().UTC(),
		Detections: make(map[Kind]Result, len(b.detectors)),
	}
	if in.Block != nil {
		report.SampleRate = in.Block.SampleRate
		report.CenterFrequencyHz = in.Block.CenterFrequency
		report.DurationSec = in.Block.Duration().Seconds()
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, det := range b.detectors {
		wg.Add(1)
		go func(det Detector) {
			defer wg.Done()
			result := b.run(det, in)
			mu.Lock()
			report.Detections[det.Kind()] = result
			mu.Unlock()
		}(det)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for _, kind := range Kinds {
		result, ok := report.Detections[kind]
		if !ok || !result.Detected {
			continue
		}
		report.Summary.JammingDetected = true
		if result.Confidence > report.Summary.MaxConfidence {
			report.Summary.MaxConfidence = result.Confidence
			report.Summary.PrimaryThreat = kind
		}
	}
	return report, nil
}

// run executes a single detector, converting both returned errors and
// panics into an error-bearing result.
func (b *Bank) run(det Detector, in Input) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("detector panicked", "detector", det.Kind(), "panic", r)
			result = Result{Kind: det.Kind(), Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	result, err := det.Analyze(in)
	if err != nil {
		b.logger.Warn("detector failed", "detector", det.Kind(), "error", err)
		return Result{Kind: det.Kind(), Err: err.Error()}
	}
	result.Kind = det.Kind()
	return result
}
