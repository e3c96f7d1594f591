// Package detect implements the offline interference detector bank that
// examines a spectrogram and its underlying sample block for jamming and
// spoofing signatures.
package detect

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rf-watch/gnss-sentry/internal/iq"
	"github.com/rf-watch/gnss-sentry/internal/spectrogram"
)

// Kind identifies an interference signature.
type Kind string

const (
	KindLinearSweep    Kind = "sweep"
	KindPulseJammer    Kind = "pulse"
	KindBroadbandNoise Kind = "noise"
	KindNarrowbandCW   Kind = "narrowband"
	KindMeaconing      Kind = "meaconing"
)

// Kinds lists every detector kind in report order.
var Kinds = []Kind{KindLinearSweep, KindPulseJammer, KindBroadbandNoise, KindNarrowbandCW, KindMeaconing}

// Peak is a detected narrowband spectral line.
type Peak struct {
	FrequencyHz float64 `json:"freq_hz"`
	PowerDB     float64 `json:"power_db"`
	BandwidthHz float64 `json:"bandwidth_hz"`
	SNRDB       float64 `json:"snr_db"`
}

// Result is a single detector's output for one analysis run. The zero
// value of the kind-specific fields means "not applicable". Field names
// follow the report wire format consumed downstream.
type Result struct {
	Kind       Kind    `json:"type"`
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`

	// Sweep
	SweepRateHzPerSec float64 `json:"sweep_rate_hz_per_sec,omitempty"`

	// Pulse
	PulseRateHz float64 `json:"pulse_rate_hz,omitempty"`
	DutyCycle   float64 `json:"duty_cycle,omitempty"`
	NumPulses   int     `json:"num_pulses,omitempty"`

	// Noise floor
	NoiseFloorDB       float64 `json:"noise_floor_db,omitempty"`
	BandwidthHz        float64 `json:"bandwidth_hz,omitempty"`
	SpectrumFlatnessDB float64 `json:"spectrum_flatness_db,omitempty"`

	// Narrowband CW
	NumSignals int    `json:"num_signals,omitempty"`
	Peaks      []Peak `json:"peaks,omitempty"`

	// Meaconing
	SignalPowerDBm     float64 `json:"signal_power_dbm,omitempty"`
	DopplerVariationHz float64 `json:"doppler_variation_hz,omitempty"`

	// Err carries the failure reason when the detector could not run.
	Err string `json:"error,omitempty"`
}

// Input bundles everything a detector may consume. Detectors only read
// it, so one Input can be shared across the whole bank.
type Input struct {
	Block       *iq.SampleBlock
	Spectrogram *spectrogram.Spectrogram
}

// Detector is the uniform capability implemented by all five offline
// detectors.
type Detector interface {
	Kind() Kind
	Analyze(in Input) (Result, error)
}

// quantile returns the p-quantile (0..1, linearly interpolated) of
// values without mutating them.
func quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// peakFrequencies returns, for each time frame, the frequency of the
// strongest bin. Several detectors track this trace over time.
func peakFrequencies(s *spectrogram.Spectrogram) []float64 {
	freqs := make([]float64, len(s.Times))
	for t := range s.Times {
		best, bestPower := 0, s.PowerDB[0][t]
		for row := 1; row < len(s.PowerDB); row++ {
			if s.PowerDB[row][t] > bestPower {
				best, bestPower = row, s.PowerDB[row][t]
			}
		}
		freqs[t] = s.Frequencies[best]
	}
	return freqs
}
