package app

import "math"

const (
	defaultMinPower = -120.0 // dB
	defaultMaxPower = 0.0    // dB

	// Below this the percentiles are meaningless, fall back to the
	// defaults.
	minimumSampleCount = 20

	minimumRangeDB = 30
)

// PowerBounds are the display power boundaries for color mapping.
type PowerBounds struct {
	Min float64 // 5th percentile power level in dB
	Max float64 // 95th percentile power level in dB
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{Min: defaultMinPower, Max: defaultMaxPower}
}

// PowerHistogram accumulates power values in 1 dB bins and derives
// percentile display bounds from them, so a handful of hot interference
// pixels cannot wash out the rest of the waterfall.
type PowerHistogram struct {
	bins       map[int]uint32
	totalCount uint64
	minBin     int
	maxBin     int
}

func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// Update adds one power reading to the histogram.
func (h *PowerHistogram) Update(power float64) {
	bin := int(math.Floor(power))

	h.bins[bin]++
	h.totalCount++

	if bin < h.minBin {
		h.minBin = bin
	}
	if bin > h.maxBin {
		h.maxBin = bin
	}
}

// Bounds returns the 5th/95th percentile power bounds, widened to at
// least a 30 dB span plus a 10% margin.
func (h *PowerHistogram) Bounds() PowerBounds {
	if h.totalCount < minimumSampleCount {
		return defaultPowerBounds()
	}

	target := h.totalCount * 5 / 100

	var count uint64
	min5th := h.minBin
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target {
			min5th = bin
			break
		}
	}

	count = 0
	max95th := h.maxBin
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target {
			max95th = bin
			break
		}
	}

	if max95th-min5th < minimumRangeDB {
		center := (max95th + min5th) / 2
		min5th = center - minimumRangeDB/2
		max95th = center + minimumRangeDB/2
	}

	margin := (max95th - min5th) / 10
	return PowerBounds{
		Min: float64(min5th - margin),
		Max: float64(max95th + margin),
	}
}
