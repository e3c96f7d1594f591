package detect

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PulseConfig tunes the on/off keying detector.
type PulseConfig struct {
	// SmoothingWindow is the moving-average span applied to the
	// instantaneous power envelope before edge detection.
	SmoothingWindow time.Duration

	// EdgeQuantile selects the power-difference threshold: transitions
	// above this quantile of the difference distribution are candidate
	// pulse edges.
	EdgeQuantile float64

	// SignificanceRatio is the minimum ratio of the edge threshold to
	// the median power difference. Stationary noise tops out near 6
	// (the tail of a two-sided exponential); keyed interference
	// separates the tail by orders of magnitude. Below this ratio no
	// edges are counted.
	SignificanceRatio float64

	// PowerFloorFraction is the minimum edge threshold as a fraction of
	// the mean envelope power. A flat envelope yields a difference
	// signal of rounding dust that clears the quantile gates but never
	// this floor.
	PowerFloorFraction float64

	// MinEdges is the minimum number of edges for a detection.
	MinEdges int

	// ConfidenceNorm divides the edge count to form the confidence.
	ConfidenceNorm float64
}

// DefaultPulseConfig returns the production thresholds.
func DefaultPulseConfig() PulseConfig {
	return PulseConfig{
		SmoothingWindow:    time.Millisecond,
		EdgeQuantile:       0.99,
		SignificanceRatio:  10,
		PowerFloorFraction: 1e-3,
		MinEdges:           10,
		ConfidenceNorm:     100,
	}
}

// PulseDetector detects pulsed (on/off keyed) jamming from sharp
// transitions in the smoothed power envelope. This is the signature
// that explains intermittent tracking loss on an otherwise usable
// signal.
type PulseDetector struct {
	Config PulseConfig
}

// NewPulseDetector creates a pulse detector with default thresholds.
func NewPulseDetector() *PulseDetector {
	return &PulseDetector{Config: DefaultPulseConfig()}
}

func (d *PulseDetector) Kind() Kind { return KindPulseJammer }

func (d *PulseDetector) Analyze(in Input) (Result, error) {
	block := in.Block
	if block == nil || len(block.Samples) == 0 {
		return Result{}, errors.New("pulse: sample block required")
	}

	result := Result{Kind: KindPulseJammer}

	power := make([]float64, len(block.Samples))
	for i, s := range block.Samples {
		power[i] = real(s)*real(s) + imag(s)*imag(s)
	}

	window := int(d.Config.SmoothingWindow.Seconds() * block.SampleRate)
	if window < 1 {
		window = 1
	}
	smooth := movingAverage(power, window)

	diff := make([]float64, len(smooth)-1)
	for i := range diff {
		diff[i] = math.Abs(smooth[i+1] - smooth[i])
	}
	if len(diff) == 0 {
		return result, nil
	}

	threshold := quantile(diff, d.Config.EdgeQuantile)
	median := quantile(diff, 0.5)
	if threshold <= median*d.Config.SignificanceRatio {
		// The difference tail is not separated from the bulk; whatever
		// crosses the quantile is just noise.
		return result, nil
	}
	if threshold <= stat.Mean(smooth, nil)*d.Config.PowerFloorFraction {
		return result, nil
	}

	edges := countEdges(diff, threshold, window)
	result.NumPulses = edges
	if edges < d.Config.MinEdges {
		return result, nil
	}

	duration := float64(len(block.Samples)) / block.SampleRate

	result.Detected = true
	// Each on/off cycle contributes a rising and a falling edge.
	result.PulseRateHz = (float64(edges) / 2) / duration
	result.DutyCycle = dutyCycle(smooth)
	result.Confidence = math.Min(float64(edges)/d.Config.ConfidenceNorm, 1)
	return result, nil
}

// movingAverage smooths values with a trailing window of the given
// length.
func movingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
			out[i] = sum / float64(window)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// countEdges counts threshold crossings in the difference signal,
// merging crossings closer than the smoothing window: one physical
// transition is smeared across the whole window by the moving average.
func countEdges(diff []float64, threshold float64, window int) int {
	edges := 0
	last := -window - 1
	for i, v := range diff {
		if v <= threshold {
			continue
		}
		if i-last > window {
			edges++
		}
		last = i
	}
	return edges
}

// dutyCycle is the fraction of time the smoothed power spends above its
// median.
func dutyCycle(smooth []float64) float64 {
	median := quantile(smooth, 0.5)
	high := 0
	for _, v := range smooth {
		if v > median {
			high++
		}
	}
	return float64(high) / float64(len(smooth))
}
