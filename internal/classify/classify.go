// Package classify turns per-epoch satellite tracking telemetry into a
// jamming verdict. It keeps a short rolling history of channel
// statistics so it can separate a weak sky view from a degrading one.
package classify

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rf-watch/gnss-sentry/internal/telemetry"
)

// Severity grades how badly tracking is degraded.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLight    Severity = "light"
	SeverityModerate Severity = "moderate"
	SeverityHeavy    Severity = "heavy"
	SeveritySevere   Severity = "severe"
	SeveritySpoofing Severity = "spoofing_detected"
)

// JammingType names the inferred interference class.
type JammingType string

const (
	TypeBroadbandNoise         JammingType = "broadband_noise"
	TypeCWTone                 JammingType = "cw_tone"
	TypeMatchedPower           JammingType = "matched_power"
	TypeHighConfidenceSpoofing JammingType = "high_confidence_spoofing"
	TypePossibleSpoofing       JammingType = "possible_spoofing"
	TypeLowDopplerSpoofing     JammingType = "low_doppler_spoofing"
	TypeUnknown                JammingType = "unknown"
)

// Method records which detection path fired.
type Method string

const (
	MethodThreshold Method = "threshold"
	MethodVariation Method = "variation"
	MethodTwoStage  Method = "two_stage"
)

// Config holds the classifier thresholds. All values have working
// defaults; zero-value fields in a partially filled Config are replaced
// by them.
type Config struct {
	// HistoryWindow is the ring buffer depth, in epochs, for the
	// rolling statistics.
	HistoryWindow int

	// JammingThresholdDBHz is the average C/N0 below which the sky view
	// is considered degraded outright.
	JammingThresholdDBHz float64

	// VariationGateDB triggers the second detection stage when the
	// average C/N0 moves this far from its rolling mean.
	VariationGateDB float64

	// SpoofingVariationDB upgrades the verdict to spoofing when the
	// C/N0 shift is this large. Jammers suppress; spoofers substitute,
	// which shows up as an abrupt level change.
	SpoofingVariationDB float64

	// MinHistory is the number of epochs required before the rolling
	// statistics are trusted.
	MinHistory int

	// Severity tiers on average C/N0, dB-Hz.
	SevereCN0DBHz   float64
	HeavyCN0DBHz    float64
	ModerateCN0DBHz float64

	// CorrelationGate and SpoofDopplerVariationHz identify a
	// single-source ensemble: all channels rising and falling together
	// with almost no Doppler movement over time.
	CorrelationGate         float64
	SpoofDopplerVariationHz float64

	// LowDopplerVariationHz and LowDopplerMinHistory flag an
	// implausibly static Doppler history on its own.
	LowDopplerVariationHz float64
	LowDopplerMinHistory  int

	// UniformCN0StdDB marks broadband noise: every channel suppressed
	// by the same amount.
	UniformCN0StdDB float64

	// SelectiveSpreadDB marks a CW tone: a wide gap between the best
	// and worst channel, since a tone only beats against some codes.
	SelectiveSpreadDB float64

	// MatchedPowerStdDB marks a matched-power attack when suppression
	// is nearly, but not exactly, uniform.
	MatchedPowerStdDB float64

	// CVNorm scales the coefficient of variation of per-satellite C/N0
	// into the correlation proxy.
	CVNorm float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:           30,
		JammingThresholdDBHz:    30,
		VariationGateDB:         3,
		SpoofingVariationDB:     5,
		MinHistory:              5,
		SevereCN0DBHz:           20,
		HeavyCN0DBHz:            25,
		ModerateCN0DBHz:         30,
		CorrelationGate:         0.95,
		SpoofDopplerVariationHz: 50,
		LowDopplerVariationHz:   20,
		LowDopplerMinHistory:    10,
		UniformCN0StdDB:         3,
		SelectiveSpreadDB:       10,
		MatchedPowerStdDB:       5,
		CVNorm:                  0.3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.JammingThresholdDBHz == 0 {
		c.JammingThresholdDBHz = def.JammingThresholdDBHz
	}
	if c.VariationGateDB == 0 {
		c.VariationGateDB = def.VariationGateDB
	}
	if c.SpoofingVariationDB == 0 {
		c.SpoofingVariationDB = def.SpoofingVariationDB
	}
	if c.MinHistory == 0 {
		c.MinHistory = def.MinHistory
	}
	if c.SevereCN0DBHz == 0 {
		c.SevereCN0DBHz = def.SevereCN0DBHz
	}
	if c.HeavyCN0DBHz == 0 {
		c.HeavyCN0DBHz = def.HeavyCN0DBHz
	}
	if c.ModerateCN0DBHz == 0 {
		c.ModerateCN0DBHz = def.ModerateCN0DBHz
	}
	if c.CorrelationGate == 0 {
		c.CorrelationGate = def.CorrelationGate
	}
	if c.SpoofDopplerVariationHz == 0 {
		c.SpoofDopplerVariationHz = def.SpoofDopplerVariationHz
	}
	if c.LowDopplerVariationHz == 0 {
		c.LowDopplerVariationHz = def.LowDopplerVariationHz
	}
	if c.LowDopplerMinHistory == 0 {
		c.LowDopplerMinHistory = def.LowDopplerMinHistory
	}
	if c.UniformCN0StdDB == 0 {
		c.UniformCN0StdDB = def.UniformCN0StdDB
	}
	if c.SelectiveSpreadDB == 0 {
		c.SelectiveSpreadDB = def.SelectiveSpreadDB
	}
	if c.MatchedPowerStdDB == 0 {
		c.MatchedPowerStdDB = def.MatchedPowerStdDB
	}
	if c.CVNorm == 0 {
		c.CVNorm = def.CVNorm
	}
	return c
}

// Stats are the per-epoch channel statistics backing a verdict.
// DopplerStdHz is the spread across this epoch's tracking channels;
// DopplerVariationHz is the movement of the average Doppler over the
// rolling history.
type Stats struct {
	Satellites         int     `json:"satellites"`
	TrackedSatellites  int     `json:"tracked_satellites"`
	AvgCN0DBHz         float64 `json:"avg_cn0_dbhz"`
	MinCN0DBHz         float64 `json:"min_cn0_dbhz"`
	MaxCN0DBHz         float64 `json:"max_cn0_dbhz"`
	CN0StdDB           float64 `json:"cn0_std_db"`
	CN0SpreadDB        float64 `json:"cn0_spread_db"`
	AvgDopplerHz       float64 `json:"avg_doppler_hz"`
	DopplerStdHz       float64 `json:"doppler_std_hz"`
	DopplerVariationHz float64 `json:"doppler_variation_hz"`
	Correlation        float64 `json:"correlation"`
	CN0VariationDB     float64 `json:"cn0_variation_db"`
	HistoryDepth       int     `json:"history_depth"`
}

// Verdict is the classifier output for one epoch.
type Verdict struct {
	Jammed     bool        `json:"jamming_detected"`
	Severity   Severity    `json:"severity"`
	Type       JammingType `json:"type,omitempty"`
	Method     Method      `json:"detection_method,omitempty"`
	Confidence float64     `json:"confidence"`
	Stats      Stats       `json:"stats"`
}

// Classifier is a streaming per-epoch jamming classifier. Each instance
// carries its own rolling histories, so independent receivers get
// independent classifiers.
type Classifier struct {
	cfg Config

	cn0History     *history
	dopplerHistory *history
	corrHistory    *history
}

// New creates a Classifier. Zero-value Config fields fall back to the
// defaults.
func New(cfg Config) *Classifier {
	cfg = cfg.withDefaults()
	return &Classifier{
		cfg:            cfg,
		cn0History:     newHistory(cfg.HistoryWindow),
		dopplerHistory: newHistory(cfg.HistoryWindow),
		corrHistory:    newHistory(cfg.HistoryWindow),
	}
}

// Classify folds one telemetry epoch into the rolling state and
// returns the verdict for it.
func (c *Classifier) Classify(epoch *telemetry.Epoch) Verdict {
	stats := c.epochStats(epoch)

	if stats.AvgCN0DBHz > 0 {
		c.cn0History.Push(stats.AvgCN0DBHz)
	}
	if stats.AvgDopplerHz != 0 {
		c.dopplerHistory.Push(stats.AvgDopplerHz)
	}
	if stats.Correlation > 0 {
		c.corrHistory.Push(stats.Correlation)
	}

	stats.HistoryDepth = c.cn0History.Len()
	// Rolling statistics are meaningless until the buffers have filled
	// past the minimum depth.
	if c.dopplerHistory.Len() >= c.cfg.MinHistory {
		stats.DopplerVariationHz = c.dopplerHistory.Std()
	}
	if c.cn0History.Len() >= c.cfg.MinHistory {
		stats.CN0VariationDB = math.Abs(stats.AvgCN0DBHz - c.cn0History.Mean())
	}

	thresholdHit := stats.AvgCN0DBHz > 0 && stats.AvgCN0DBHz < c.cfg.JammingThresholdDBHz
	variationHit := stats.CN0VariationDB > c.cfg.VariationGateDB && c.cn0History.Len() > c.cfg.MinHistory

	verdict := Verdict{Severity: SeverityNone, Stats: stats}
	if !thresholdHit && !variationHit {
		return verdict
	}

	verdict.Jammed = true
	verdict.Severity = c.severity(stats)
	verdict.Type = c.jammingType(stats)
	switch {
	case thresholdHit && variationHit:
		verdict.Method = MethodTwoStage
	case thresholdHit:
		verdict.Method = MethodThreshold
	default:
		verdict.Method = MethodVariation
	}

	stage1 := 0.0
	if thresholdHit {
		stage1 = 0.5
	}
	verdict.Confidence = math.Min(1, stage1+math.Min(0.5, stats.CN0VariationDB/10))
	return verdict
}

// epochStats reduces one epoch to channel aggregates. C/N0 statistics
// come from satellites at least acquired with a usable measurement;
// Doppler statistics only from satellites fully tracking, since a
// channel still pulling in has no trustworthy frequency estimate.
func (c *Classifier) epochStats(epoch *telemetry.Epoch) Stats {
	var stats Stats
	if epoch == nil {
		return stats
	}

	var cn0s, dopplers []float64
	for _, sat := range epoch.Satellites {
		if sat.State >= telemetry.StateTracking {
			stats.TrackedSatellites++
			dopplers = append(dopplers, sat.DopplerHz)
		}
		if sat.State < telemetry.StateAcquired || sat.CN0DbHz <= 0 {
			continue
		}
		cn0s = append(cn0s, sat.CN0DbHz)
	}
	stats.Satellites = len(cn0s)

	if len(dopplers) > 0 {
		stats.AvgDopplerHz = stat.Mean(dopplers, nil)
		stats.DopplerStdHz = stat.PopStdDev(dopplers, nil)
	}
	if len(cn0s) == 0 {
		return stats
	}

	stats.AvgCN0DBHz = stat.Mean(cn0s, nil)
	stats.CN0StdDB = stat.PopStdDev(cn0s, nil)

	minCN0, maxCN0 := cn0s[0], cn0s[0]
	for _, v := range cn0s[1:] {
		minCN0 = math.Min(minCN0, v)
		maxCN0 = math.Max(maxCN0, v)
	}
	stats.MinCN0DBHz = minCN0
	stats.MaxCN0DBHz = maxCN0
	stats.CN0SpreadDB = maxCN0 - minCN0

	stats.Correlation = c.correlation(cn0s, stats)
	return stats
}

// correlation is a proxy for cross-channel C/N0 correlation built from
// the coefficient of variation: genuinely independent satellites spread
// their C/N0 widely, a single transmitting source does not. It is not a
// pairwise correlation over time, which would need per-satellite
// histories; the dispersion proxy reacts within a single epoch.
func (c *Classifier) correlation(cn0s []float64, stats Stats) float64 {
	if len(cn0s) < 2 {
		return 0
	}
	if stats.CN0StdDB == 0 {
		return 1
	}
	cv := stats.CN0StdDB / stats.AvgCN0DBHz
	return 1 - math.Min(cv/c.cfg.CVNorm, 1)
}

func (c *Classifier) severity(stats Stats) Severity {
	if stats.CN0VariationDB > c.cfg.SpoofingVariationDB {
		return SeveritySpoofing
	}
	switch {
	case stats.AvgCN0DBHz < c.cfg.SevereCN0DBHz:
		return SeveritySevere
	case stats.AvgCN0DBHz < c.cfg.HeavyCN0DBHz:
		return SeverityHeavy
	case stats.AvgCN0DBHz < c.cfg.ModerateCN0DBHz:
		return SeverityModerate
	default:
		return SeverityLight
	}
}

// jammingType applies the classification rules in confidence order:
// spoofing signatures first, then the power-based jammer classes.
func (c *Classifier) jammingType(stats Stats) JammingType {
	switch {
	case stats.Correlation > c.cfg.CorrelationGate && stats.DopplerVariationHz < c.cfg.SpoofDopplerVariationHz:
		return TypeHighConfidenceSpoofing
	case stats.CN0VariationDB > c.cfg.SpoofingVariationDB:
		return TypePossibleSpoofing
	case stats.DopplerVariationHz < c.cfg.LowDopplerVariationHz && c.dopplerHistory.Len() > c.cfg.LowDopplerMinHistory:
		return TypeLowDopplerSpoofing
	case stats.CN0StdDB < c.cfg.UniformCN0StdDB:
		return TypeBroadbandNoise
	case stats.CN0SpreadDB > c.cfg.SelectiveSpreadDB:
		return TypeCWTone
	case stats.CN0StdDB < c.cfg.MatchedPowerStdDB:
		return TypeMatchedPower
	default:
		return TypeUnknown
	}
}
