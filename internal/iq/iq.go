package iq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// ErrFormat is returned when sample input is malformed or too short to
// analyze.
var ErrFormat = errors.New("iq: malformed sample data")

const bytesPerSample = 8 // two float32 components per complex sample

// SampleBlock is an immutable block of complex baseband samples tagged
// with its capture parameters. It is owned exclusively by the analysis
// call that loaded it.
type SampleBlock struct {
	Samples         []complex128
	SampleRate      float64 // Hz
	CenterFrequency float64 // Hz
}

// Duration returns the wall-clock span covered by the block.
func (b *SampleBlock) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / b.SampleRate * float64(time.Second))
}

// LoadOption configures sample loading.
type LoadOption func(*loadOptions)

type loadOptions struct {
	maxSamples int
	skipSettle time.Duration
}

// WithMaxSamples caps the number of samples read after the settle skip.
func WithMaxSamples(n int) LoadOption {
	return func(o *loadOptions) {
		o.maxSamples = n
	}
}

// WithSettleSkip discards the given leading duration of the recording.
// SDR front ends need a few hundred milliseconds to settle after tuning,
// and those samples carry transients that corrupt spectral statistics.
func WithSettleSkip(d time.Duration) LoadOption {
	return func(o *loadOptions) {
		o.skipSettle = d
	}
}

// LoadFile reads interleaved little-endian float32 I/Q pairs from path.
// Sample rate and center frequency are capture metadata supplied by the
// caller; the file itself carries none.
func LoadFile(path string, sampleRate, centerFrequency float64, options ...LoadOption) (*SampleBlock, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: non-positive sample rate %f", ErrFormat, sampleRate)
	}

	var opts loadOptions
	for _, option := range options {
		option(&opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sample file: %w", err)
	}
	defer f.Close()

	if opts.skipSettle > 0 {
		skip := int64(opts.skipSettle.Seconds()*sampleRate) * bytesPerSample
		if _, err = f.Seek(skip, io.SeekStart); err != nil {
			return nil, fmt.Errorf("skipping settle samples: %w", err)
		}
	}

	var r io.Reader = f
	if opts.maxSamples > 0 {
		r = io.LimitReader(f, int64(opts.maxSamples)*bytesPerSample)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading sample file: %w", err)
	}
	if len(raw) < bytesPerSample {
		return nil, fmt.Errorf("%w: file %s holds no complete samples", ErrFormat, path)
	}

	samples := Decode(raw)
	return &SampleBlock{
		Samples:         samples,
		SampleRate:      sampleRate,
		CenterFrequency: centerFrequency,
	}, nil
}

// Decode converts interleaved little-endian float32 I/Q bytes into
// complex samples. Trailing bytes that do not form a complete sample
// are dropped.
func Decode(raw []byte) []complex128 {
	n := len(raw) / bytesPerSample
	samples := make([]complex128, n)
	for i := 0; i < n; i++ {
		off := i * bytesPerSample
		re := math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(raw[off+4:]))
		samples[i] = complex(float64(re), float64(im))
	}
	return samples
}
