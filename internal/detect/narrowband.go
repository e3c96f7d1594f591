package detect

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// NarrowbandConfig tunes the continuous-wave tone detector.
type NarrowbandConfig struct {
	// FloorQuantile selects the noise-floor estimate from the mean
	// spectrum.
	FloorQuantile float64

	// PeakMarginDB is how far above the floor a bin must rise to start
	// a peak.
	PeakMarginDB float64

	// HalfPowerDB is the walk-out threshold below the peak apex used to
	// measure bandwidth.
	HalfPowerDB float64

	// MinBandwidthHz and MaxBandwidthHz bound accepted peak widths,
	// both exclusive. Single hot bins from sweep residue fall below the
	// minimum; raised noise shelves exceed the maximum.
	MinBandwidthHz float64
	MaxBandwidthHz float64

	// MaxPeaks caps the reported peak list.
	MaxPeaks int

	// ConfidenceNorm divides the peak count to form the confidence.
	ConfidenceNorm float64
}

// DefaultNarrowbandConfig returns the production thresholds.
func DefaultNarrowbandConfig() NarrowbandConfig {
	return NarrowbandConfig{
		FloorQuantile:  0.25,
		PeakMarginDB:   6,
		HalfPowerDB:    3,
		MinBandwidthHz: 30,
		MaxBandwidthHz: 2000,
		MaxPeaks:       50,
		ConfidenceNorm: 10,
	}
}

// NarrowbandCWDetector finds persistent continuous-wave tones. It works
// on the maximum power each bin reaches across time, so even a tone
// that drifts slightly still registers at full strength.
type NarrowbandCWDetector struct {
	Config NarrowbandConfig
}

// NewNarrowbandCWDetector creates a CW detector with default
// thresholds.
func NewNarrowbandCWDetector() *NarrowbandCWDetector {
	return &NarrowbandCWDetector{Config: DefaultNarrowbandConfig()}
}

func (d *NarrowbandCWDetector) Kind() Kind { return KindNarrowbandCW }

func (d *NarrowbandCWDetector) Analyze(in Input) (Result, error) {
	s := in.Spectrogram
	if s == nil || len(s.PowerDB) == 0 || len(s.Times) == 0 {
		return Result{}, errors.New("narrowband: spectrogram required")
	}

	result := Result{Kind: KindNarrowbandCW}

	maxSpectrum := make([]float64, len(s.PowerDB))
	meanSpectrum := make([]float64, len(s.PowerDB))
	for i, row := range s.PowerDB {
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		maxSpectrum[i] = maxVal
		meanSpectrum[i] = stat.Mean(row, nil)
	}

	floor := quantile(meanSpectrum, d.Config.FloorQuantile)
	threshold := floor + d.Config.PeakMarginDB

	peaks := d.findPeaks(s.Frequencies, maxSpectrum, floor, threshold)
	result.NumSignals = len(peaks)
	result.Peaks = peaks
	if len(peaks) == 0 {
		return result, nil
	}

	result.Detected = true
	result.Confidence = math.Min(float64(len(peaks))/d.Config.ConfidenceNorm, 1)
	return result, nil
}

// findPeaks scans the max-hold spectrum for local maxima above the
// threshold, measures each one's half-power bandwidth by walking out
// from the apex, and keeps only those within the configured width
// bounds. When more peaks survive than the cap allows, the strongest
// ones win; the returned list is ordered by frequency.
func (d *NarrowbandCWDetector) findPeaks(freqs, spectrum []float64, floor, threshold float64) []Peak {
	var peaks []Peak
	for i := 1; i < len(spectrum)-1; i++ {
		if spectrum[i] <= threshold {
			continue
		}
		if spectrum[i] < spectrum[i-1] || spectrum[i] < spectrum[i+1] {
			continue
		}

		bw := d.bandwidth(freqs, spectrum, i)
		if bw <= d.Config.MinBandwidthHz || bw >= d.Config.MaxBandwidthHz {
			continue
		}

		peaks = append(peaks, Peak{
			FrequencyHz: freqs[i],
			PowerDB:     spectrum[i],
			BandwidthHz: bw,
			SNRDB:       spectrum[i] - floor,
		})
	}

	if len(peaks) > d.Config.MaxPeaks {
		sort.Slice(peaks, func(a, b int) bool { return peaks[a].PowerDB > peaks[b].PowerDB })
		peaks = peaks[:d.Config.MaxPeaks]
		sort.Slice(peaks, func(a, b int) bool { return peaks[a].FrequencyHz < peaks[b].FrequencyHz })
	}
	return peaks
}

// bandwidth walks left and right from the apex until power drops by
// the half-power margin and returns the spanned width in Hz.
func (d *NarrowbandCWDetector) bandwidth(freqs, spectrum []float64, apex int) float64 {
	edge := spectrum[apex] - d.Config.HalfPowerDB

	lo := apex
	for lo > 0 && spectrum[lo-1] >= edge {
		lo--
	}
	hi := apex
	for hi < len(spectrum)-1 && spectrum[hi+1] >= edge {
		hi++
	}

	// A tone confined to one bin still occupies one bin width.
	width := freqs[hi] - freqs[lo]
	if binWidth := freqs[1] - freqs[0]; width < binWidth {
		width = binWidth
	}
	return width
}
