package detect

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SweepConfig tunes the linear-sweep detector. The defaults are
// empirical values proven against field recordings.
type SweepConfig struct {
	// VarianceGateDB2 is the minimum per-bin power variance across time,
	// in dB², for a bin to be considered a sweep candidate.
	VarianceGateDB2 float64

	// MinRateHzPerSec is the minimum absolute sweep rate that confirms a
	// detection. Pulsed and noise interference also produce high per-bin
	// variance, but without frequency motion.
	MinRateHzPerSec float64

	// ConfidenceNormDB2 divides the peak variance to form the
	// confidence score.
	ConfidenceNormDB2 float64
}

// DefaultSweepConfig returns the production thresholds.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		VarianceGateDB2:   15,
		MinRateHzPerSec:   10_000,
		ConfidenceNormDB2: 30,
	}
}

// SweepDetector detects a linearly swept jammer, which shows up as a
// diagonal line in the spectrogram.
type SweepDetector struct {
	Config SweepConfig
}

// NewSweepDetector creates a sweep detector with default thresholds.
func NewSweepDetector() *SweepDetector {
	return &SweepDetector{Config: DefaultSweepConfig()}
}

func (d *SweepDetector) Kind() Kind { return KindLinearSweep }

// Analyze gates on per-bin power variance across time, then estimates
// the sweep rate by regressing the per-frame peak frequency against
// time. High variance alone is not enough: the rate floor separates
// true sweeps from pulsed or noise interference.
func (d *SweepDetector) Analyze(in Input) (Result, error) {
	s := in.Spectrogram
	if s == nil || len(s.Times) < 2 {
		return Result{}, errors.New("sweep: spectrogram with at least two frames required")
	}

	result := Result{Kind: KindLinearSweep}

	maxVariance := 0.0
	for _, row := range s.PowerDB {
		if v := stat.PopVariance(row, nil); v > maxVariance {
			maxVariance = v
		}
	}
	if maxVariance <= d.Config.VarianceGateDB2 {
		return result, nil
	}

	_, rate := stat.LinearRegression(s.Times, peakFrequencies(s), nil, false)
	result.SweepRateHzPerSec = rate

	if math.Abs(rate) > d.Config.MinRateHzPerSec {
		result.Detected = true
		result.Confidence = math.Min(maxVariance/d.Config.ConfidenceNormDB2, 1)
	}
	return result, nil
}
