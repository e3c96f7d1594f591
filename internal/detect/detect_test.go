package detect

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"
	"time"

	"github.com/rf-watch/gnss-sentry/internal/iq"
	"github.com/rf-watch/gnss-sentry/internal/spectrogram"
)

func toneBlock(t *testing.T, sampleRate, freq float64, d time.Duration, amplitude float64) *iq.SampleBlock {
	t.Helper()
	n := int(sampleRate * d.Seconds())
	samples := make([]complex128, n)
	for i := range samples {
		phase := 2 * math.Pi * freq * float64(i) / sampleRate
		samples[i] = complex(amplitude, 0) * cmplx.Exp(complex(0, phase))
	}
	return &iq.SampleBlock{Samples: samples, SampleRate: sampleRate, CenterFrequency: 1575.42e6}
}

func chirpBlock(t *testing.T, sampleRate, startFreq, rateHzPerSec float64, d time.Duration) *iq.SampleBlock {
	t.Helper()
	n := int(sampleRate * d.Seconds())
	samples := make([]complex128, n)
	for i := range samples {
		tt := float64(i) / sampleRate
		phase := 2 * math.Pi * (startFreq*tt + rateHzPerSec*tt*tt/2)
		samples[i] = cmplx.Exp(complex(0, phase))
	}
	return &iq.SampleBlock{Samples: samples, SampleRate: sampleRate, CenterFrequency: 1575.42e6}
}

func noiseBlock(t *testing.T, sampleRate float64, d time.Duration, sigma float64, seed int64) *iq.SampleBlock {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n := int(sampleRate * d.Seconds())
	samples := make([]complex128, n)
	for i := range samples {
		samples[i] = complex(rng.NormFloat64()*sigma, rng.NormFloat64()*sigma)
	}
	return &iq.SampleBlock{Samples: samples, SampleRate: sampleRate, CenterFrequency: 1575.42e6}
}

// gatedToneBlock keys a unit carrier on and off at keyRateHz with the
// given duty cycle and adds a small amount of receiver noise.
func gatedToneBlock(t *testing.T, sampleRate, carrierHz, keyRateHz, duty float64, d time.Duration, sigma float64, seed int64) *iq.SampleBlock {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n := int(sampleRate * d.Seconds())
	period := sampleRate / keyRateHz
	samples := make([]complex128, n)
	for i := range samples {
		noise := complex(rng.NormFloat64()*sigma, rng.NormFloat64()*sigma)
		if math.Mod(float64(i), period) < period*duty {
			phase := 2 * math.Pi * carrierHz * float64(i) / sampleRate
			samples[i] = cmplx.Exp(complex(0, phase)) + noise
		} else {
			samples[i] = noise
		}
	}
	return &iq.SampleBlock{Samples: samples, SampleRate: sampleRate, CenterFrequency: 1575.42e6}
}

func computeSpectrogram(t *testing.T, block *iq.SampleBlock, fftSize int, overlap float64) *spectrogram.Spectrogram {
	t.Helper()
	engine, err := spectrogram.NewEngine(fftSize, spectrogram.WithOverlap(overlap), spectrogram.WithEdgeTrim(0))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	s, err := engine.Compute(block)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return s
}

func TestSweepDetector(t *testing.T) {
	const rate = 50_000.0
	block := chirpBlock(t, 400_000, -100_000, rate, 4*time.Second)
	s := computeSpectrogram(t, block, 512, 0)

	result, err := NewSweepDetector().Analyze(Input{Block: block, Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Detected {
		t.Fatal("chirp not detected")
	}
	if got := result.SweepRateHzPerSec; math.Abs(got-rate) > rate*0.1 {
		t.Errorf("sweep rate = %.0f Hz/s, want within 10%% of %.0f", got, rate)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence = %f, want 1", result.Confidence)
	}
}

func TestSweepDetector_StaticTone(t *testing.T) {
	block := toneBlock(t, 400_000, 12_500, time.Second, 1)
	s := computeSpectrogram(t, block, 512, 0)

	result, err := NewSweepDetector().Analyze(Input{Block: block, Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Detected {
		t.Errorf("static tone reported as sweep, rate %.0f Hz/s", result.SweepRateHzPerSec)
	}
}

func TestPulseDetector(t *testing.T) {
	const keyRate = 100.0
	block := gatedToneBlock(t, 200_000, 10_000, keyRate, 0.5, 2*time.Second, 0.01, 7)

	result, err := NewPulseDetector().Analyze(Input{Block: block})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Detected {
		t.Fatalf("gated carrier not detected, %d edges", result.NumPulses)
	}
	if got := result.PulseRateHz; math.Abs(got-keyRate) > keyRate*0.05 {
		t.Errorf("pulse rate = %.1f Hz, want within 5%% of %.0f", got, keyRate)
	}
	if result.DutyCycle < 0.4 || result.DutyCycle > 0.6 {
		t.Errorf("duty cycle = %.2f, want near 0.5", result.DutyCycle)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence = %f, want 1", result.Confidence)
	}
}

func TestPulseDetector_ContinuousTone(t *testing.T) {
	block := toneBlock(t, 200_000, 10_000, time.Second, 1)

	result, err := NewPulseDetector().Analyze(Input{Block: block})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Detected {
		t.Errorf("continuous tone reported as pulsed, %d edges", result.NumPulses)
	}
}

func TestNoiseFloorDetector(t *testing.T) {
	block := noiseBlock(t, 200_000, 2*time.Second, 0.1, 11)
	s := computeSpectrogram(t, block, 256, 0.5)

	result, err := NewNoiseFloorDetector().Analyze(Input{Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Detected {
		t.Fatalf("flat noise not detected, flatness %.2f dB", result.SpectrumFlatnessDB)
	}
	if result.SpectrumFlatnessDB > 1 {
		t.Errorf("flatness = %.2f dB, want well under 1 for averaged white noise", result.SpectrumFlatnessDB)
	}
	if result.Confidence < 0.6 {
		t.Errorf("confidence = %f, want at least 0.6", result.Confidence)
	}
	if result.BandwidthHz <= 0 {
		t.Errorf("bandwidth = %f Hz, want positive", result.BandwidthHz)
	}
}

func TestNoiseFloorDetector_Tone(t *testing.T) {
	block := toneBlock(t, 200_000, 12_500, time.Second, 1)
	s := computeSpectrogram(t, block, 256, 0.5)

	result, err := NewNoiseFloorDetector().Analyze(Input{Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Detected {
		t.Errorf("single tone reported as broadband noise, flatness %.2f dB", result.SpectrumFlatnessDB)
	}
}

// TestNoiseFloorDetector_OccupiedBandwidth checks that bins far above
// the floor still count as occupied. The occupancy threshold is
// one-sided, so a carrier riding on the noise must not be excluded
// from the bandwidth estimate.
func TestNoiseFloorDetector_OccupiedBandwidth(t *testing.T) {
	const sampleRate = 200_000.0
	block := noiseBlock(t, sampleRate, 2*time.Second, 0.1, 11)
	for i := range block.Samples {
		phase := 2 * math.Pi * 12_500 * float64(i) / sampleRate
		block.Samples[i] += cmplx.Exp(complex(0, phase))
	}
	s := computeSpectrogram(t, block, 128, 0)

	result, err := NewNoiseFloorDetector().Analyze(Input{Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Detected {
		t.Fatalf("raised floor not detected, flatness %.2f dB", result.SpectrumFlatnessDB)
	}
	if result.BandwidthHz != block.SampleRate {
		t.Errorf("bandwidth = %.1f Hz, want the full %.0f Hz with the carrier bin included", result.BandwidthHz, block.SampleRate)
	}
}

func TestNarrowbandCWDetector(t *testing.T) {
	const freq = 12_500.0
	block := toneBlock(t, 200_000, freq, 500*time.Millisecond, 1)
	s := computeSpectrogram(t, block, 512, 0.5)

	result, err := NewNarrowbandCWDetector().Analyze(Input{Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Detected {
		t.Fatal("tone not detected")
	}
	if result.NumSignals != 1 {
		t.Fatalf("detected %d signals, want exactly 1: %+v", result.NumSignals, result.Peaks)
	}

	peak := result.Peaks[0]
	binWidth := s.FrequencyResolution()
	if math.Abs(peak.FrequencyHz-freq) > binWidth/2 {
		t.Errorf("peak at %.1f Hz, want within half a bin of %.0f", peak.FrequencyHz, freq)
	}
	if peak.BandwidthHz <= 30 || peak.BandwidthHz >= 2000 {
		t.Errorf("bandwidth = %.1f Hz, want inside the narrowband window", peak.BandwidthHz)
	}
	if peak.SNRDB < 60 {
		t.Errorf("SNR = %.1f dB, want a clean tone far above the floor", peak.SNRDB)
	}
	if got, want := result.Confidence, 0.1; math.Abs(got-want) > 1e-9 {
		t.Errorf("confidence = %f, want %f", got, want)
	}
}

func TestNarrowbandCWDetector_MultipleTones(t *testing.T) {
	const sampleRate = 200_000.0
	freqs := []float64{-50_000, 12_500, 62_500}

	n := int(sampleRate / 2)
	samples := make([]complex128, n)
	for i := range samples {
		for _, f := range freqs {
			phase := 2 * math.Pi * f * float64(i) / sampleRate
			samples[i] += cmplx.Exp(complex(0, phase))
		}
	}
	block := &iq.SampleBlock{Samples: samples, SampleRate: sampleRate, CenterFrequency: 1575.42e6}
	s := computeSpectrogram(t, block, 512, 0.5)

	result, err := NewNarrowbandCWDetector().Analyze(Input{Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.NumSignals != len(freqs) {
		t.Fatalf("detected %d signals, want %d: %+v", result.NumSignals, len(freqs), result.Peaks)
	}
	for i, f := range freqs {
		if got := result.Peaks[i].FrequencyHz; math.Abs(got-f) > s.FrequencyResolution()/2 {
			t.Errorf("peak %d at %.1f Hz, want %.0f", i, got, f)
		}
	}
}

func TestMeaconingDetector(t *testing.T) {
	block := toneBlock(t, 200_000, 12_500, 500*time.Millisecond, 0.5)
	s := computeSpectrogram(t, block, 512, 0.5)

	result, err := NewMeaconingDetector().Analyze(Input{Block: block, Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Detected {
		t.Fatalf("strong static carrier not flagged: power %.1f dBm, doppler %.1f Hz",
			result.SignalPowerDBm, result.DopplerVariationHz)
	}
	// Amplitude 0.5 is -6 dBFS, -16 dBm after the reference offset.
	if math.Abs(result.SignalPowerDBm+16) > 0.5 {
		t.Errorf("signal power = %.1f dBm, want about -16", result.SignalPowerDBm)
	}
	if result.DopplerVariationHz > 1 {
		t.Errorf("doppler variation = %.2f Hz, want static", result.DopplerVariationHz)
	}
	if result.Confidence != 0.95 {
		t.Errorf("confidence = %f, want capped at 0.95", result.Confidence)
	}
}

func TestMeaconingDetector_WeakSignal(t *testing.T) {
	block := toneBlock(t, 200_000, 12_500, 500*time.Millisecond, 1e-6)
	s := computeSpectrogram(t, block, 512, 0.5)

	result, err := NewMeaconingDetector().Analyze(Input{Block: block, Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Detected {
		t.Errorf("thermal-level signal flagged as meaconing at %.1f dBm", result.SignalPowerDBm)
	}
}

// TestBank_NoiseOnly verifies the whole bank agrees on white noise:
// only the noise floor detector should fire.
func TestBank_NoiseOnly(t *testing.T) {
	block := noiseBlock(t, 200_000, 2*time.Second, 0.1, 42)
	s := computeSpectrogram(t, block, 64, 0.5)

	report, err := NewBank(nil).Analyze(context.Background(), Input{Block: block, Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for _, kind := range Kinds {
		result, ok := report.Detections[kind]
		if !ok {
			t.Fatalf("missing %s entry", kind)
		}
		want := kind == KindBroadbandNoise
		if result.Detected != want {
			t.Errorf("%s: detected = %v, want %v (%+v)", kind, result.Detected, want, result)
		}
	}
	if !report.Summary.JammingDetected {
		t.Error("summary should flag jamming")
	}
	if report.Summary.PrimaryThreat != KindBroadbandNoise {
		t.Errorf("primary threat = %s, want %s", report.Summary.PrimaryThreat, KindBroadbandNoise)
	}
	if report.SampleRate != block.SampleRate {
		t.Errorf("report sample rate = %f, want %f", report.SampleRate, block.SampleRate)
	}
}

type erroringDetector struct{ kind Kind }

func (d erroringDetector) Kind() Kind { return d.kind }
func (d erroringDetector) Analyze(Input) (Result, error) {
	return Result{}, errors.New("transform failed")
}

type panickingDetector struct{ kind Kind }

func (d panickingDetector) Kind() Kind                    { return d.kind }
func (d panickingDetector) Analyze(Input) (Result, error) { panic("index out of range") }

func TestBank_FailureIsolation(t *testing.T) {
	block := noiseBlock(t, 200_000, 500*time.Millisecond, 0.1, 3)
	s := computeSpectrogram(t, block, 256, 0.5)

	bank := NewBank([]Detector{
		erroringDetector{kind: KindLinearSweep},
		panickingDetector{kind: KindPulseJammer},
		NewNoiseFloorDetector(),
	})
	report, err := bank.Analyze(context.Background(), Input{Block: block, Spectrogram: s})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	sweep := report.Detections[KindLinearSweep]
	if sweep.Detected || sweep.Err == "" {
		t.Errorf("failed detector entry = %+v, want error recorded and no detection", sweep)
	}
	pulse := report.Detections[KindPulseJammer]
	if pulse.Detected || pulse.Err == "" {
		t.Errorf("panicked detector entry = %+v, want error recorded and no detection", pulse)
	}
	noise := report.Detections[KindBroadbandNoise]
	if !noise.Detected {
		t.Error("healthy detector should still report")
	}
	if !report.Summary.JammingDetected || report.Summary.PrimaryThreat != KindBroadbandNoise {
		t.Errorf("summary = %+v, want noise as primary threat", report.Summary)
	}
}

func TestBank_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := noiseBlock(t, 200_000, 500*time.Millisecond, 0.1, 5)
	s := computeSpectrogram(t, block, 256, 0.5)

	_, err := NewBank(nil).Analyze(ctx, Input{Block: block, Spectrogram: s})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
