package detect

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeaconingConfig tunes the replay/meaconing detector.
type MeaconingConfig struct {
	// ReferenceLevelDBm maps full-scale digital power to absolute power
	// at the antenna port. It folds in front-end gain.
	ReferenceLevelDBm float64

	// MinPowerDBm is the power gate. Genuine GNSS signals arrive near
	// -130 dBm; anything well above that is terrestrial.
	MinPowerDBm float64

	// MaxDopplerStdHz is the peak-frequency stability gate. A replayed
	// ensemble from a static transmitter carries none of the Doppler
	// spread real satellite geometry produces.
	MaxDopplerStdHz float64

	// PowerNormDBm and PowerSpanDB map excess power onto the power
	// confidence factor.
	PowerNormDBm float64
	PowerSpanDB  float64

	// MaxConfidence caps the combined score. Meaconing is inferred, not
	// demodulated, so the score never reaches certainty.
	MaxConfidence float64
}

// DefaultMeaconingConfig returns the production thresholds.
func DefaultMeaconingConfig() MeaconingConfig {
	return MeaconingConfig{
		ReferenceLevelDBm: -10,
		MinPowerDBm:       -120,
		MaxDopplerStdHz:   1000,
		PowerNormDBm:      -130,
		PowerSpanDB:       30,
		MaxConfidence:     0.95,
	}
}

// MeaconingDetector infers signal replay from two clues that never
// co-occur in a clean sky view: received power far above the GNSS
// thermal floor, and a spectral peak that does not move.
type MeaconingDetector struct {
	Config MeaconingConfig
}

// NewMeaconingDetector creates a meaconing detector with default
// thresholds.
func NewMeaconingDetector() *MeaconingDetector {
	return &MeaconingDetector{Config: DefaultMeaconingConfig()}
}

func (d *MeaconingDetector) Kind() Kind { return KindMeaconing }

func (d *MeaconingDetector) Analyze(in Input) (Result, error) {
	block := in.Block
	s := in.Spectrogram
	if block == nil || len(block.Samples) == 0 {
		return Result{}, errors.New("meaconing: sample block required")
	}
	if s == nil || len(s.Times) == 0 {
		return Result{}, errors.New("meaconing: spectrogram required")
	}

	result := Result{Kind: KindMeaconing}

	meanPower := 0.0
	for _, v := range block.Samples {
		meanPower += real(v)*real(v) + imag(v)*imag(v)
	}
	meanPower /= float64(len(block.Samples))

	dbFS := 10 * math.Log10(meanPower+1e-20)
	powerDBm := dbFS + d.Config.ReferenceLevelDBm
	result.SignalPowerDBm = powerDBm

	dopplerStd := stat.PopStdDev(peakFrequencies(s), nil)
	result.DopplerVariationHz = dopplerStd

	if powerDBm <= d.Config.MinPowerDBm || dopplerStd >= d.Config.MaxDopplerStdHz {
		return result, nil
	}

	powerFactor := clamp((powerDBm-d.Config.PowerNormDBm)/d.Config.PowerSpanDB, 0, 1)
	staticFactor := clamp(1-dopplerStd/d.Config.MaxDopplerStdHz, 0, 1)

	result.Detected = true
	result.Confidence = math.Min(powerFactor*staticFactor, d.Config.MaxConfidence)
	return result, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
