package detect

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rf-watch/gnss-sentry/internal/spectrogram"
)

// NoiseConfig tunes the broadband noise detector.
type NoiseConfig struct {
	// FlatnessGateDB is the maximum standard deviation of the averaged
	// spectrum, in dB, for the floor to count as elevated broadband
	// noise rather than structured signal.
	FlatnessGateDB float64

	// BandwidthMarginDB bounds the occupied-bandwidth estimate: bins
	// no more than this far below the median floor are counted as
	// occupied.
	BandwidthMarginDB float64
}

// DefaultNoiseConfig returns the production thresholds.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		FlatnessGateDB:    5,
		BandwidthMarginDB: 3,
	}
}

// NoiseFloorDetector flags broadband noise jamming: a raised, flat
// noise floor across the band. The spectrum is averaged over many
// segments so narrowband structure and sweep residue stand out as
// variance while true wideband noise averages flat.
type NoiseFloorDetector struct {
	Config NoiseConfig
}

// NewNoiseFloorDetector creates a noise floor detector with default
// thresholds.
func NewNoiseFloorDetector() *NoiseFloorDetector {
	return &NoiseFloorDetector{Config: DefaultNoiseConfig()}
}

func (d *NoiseFloorDetector) Kind() Kind { return KindBroadbandNoise }

func (d *NoiseFloorDetector) Analyze(in Input) (Result, error) {
	s := in.Spectrogram
	if s == nil || len(s.PowerDB) == 0 || len(s.Times) == 0 {
		return Result{}, errors.New("noise: spectrogram required")
	}

	result := Result{Kind: KindBroadbandNoise}

	// Averaging frame power bins over time is equivalent to Welch
	// averaging of the segment periodograms the spectrogram is built
	// from.
	avg := make([]float64, len(s.PowerDB))
	for i, row := range s.PowerDB {
		avg[i] = stat.Mean(row, nil)
	}

	floorDB := quantile(avg, 0.5)
	flatness := stat.PopStdDev(avg, nil)

	result.NoiseFloorDB = floorDB
	result.SpectrumFlatnessDB = flatness
	if flatness >= d.Config.FlatnessGateDB {
		return result, nil
	}

	result.Detected = true
	result.Confidence = math.Min((d.Config.FlatnessGateDB-flatness)/d.Config.FlatnessGateDB, 1)
	result.BandwidthHz = d.occupiedBandwidth(s, avg, floorDB)
	return result, nil
}

// occupiedBandwidth counts frequency bins at or above the margin below
// the median floor and converts the count to Hz. The threshold is
// one-sided: bins well above the floor are occupied by definition.
func (d *NoiseFloorDetector) occupiedBandwidth(s *spectrogram.Spectrogram, avg []float64, floorDB float64) float64 {
	raised := 0
	for _, v := range avg {
		if v >= floorDB-d.Config.BandwidthMarginDB {
			raised++
		}
	}
	return float64(raised) * s.FrequencyResolution()
}
