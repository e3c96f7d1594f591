package telemetry

import (
	"context"
	"time"
)

// TrackingState describes how far a receiver channel has progressed with
// a satellite signal.
type TrackingState int

const (
	StateSearching TrackingState = iota
	StateAcquired
	StateTracking
)

func (s TrackingState) String() string {
	switch s {
	case StateAcquired:
		return "ACQUIRED"
	case StateTracking:
		return "TRACKING"
	default:
		return "SEARCHING"
	}
}

// SatelliteEpoch is one tracked satellite's quality measurements for a
// single receiver update tick. Produced by the external GNSS receiver
// engine's monitor output; never mutated by the classifier.
type SatelliteEpoch struct {
	PRN                int           `json:"prn"`
	System             string        `json:"system,omitempty"` // G=GPS, E=Galileo, R=GLONASS, C=BeiDou
	Signal             string        `json:"signal,omitempty"`
	CN0DbHz            float64       `json:"cn0"`
	DopplerHz          float64       `json:"dopplerHz"`
	CarrierPhaseCycles float64       `json:"carrierPhase,omitempty"`
	CodePhaseChips     float64       `json:"codePhase,omitempty"`
	State              TrackingState `json:"state"`
	CarrierLock        bool          `json:"carrierLock,omitempty"`
	BitSync            bool          `json:"bitSync,omitempty"`
	SubframeSync       bool          `json:"subframeSync,omitempty"`
}

// Epoch is the complete set of tracked satellites for one update tick.
type Epoch struct {
	Timestamp  time.Time        `json:"timestamp"`
	Satellites []SatelliteEpoch `json:"satellites"`
}

// Provider supplies satellite epochs from some external source, one per
// receiver update tick. Next returns io.EOF when the source is exhausted.
type Provider interface {
	Next(ctx context.Context) (*Epoch, error)
}
