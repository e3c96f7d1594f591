// Package spectrogram turns blocks of complex baseband samples into
// time/frequency power matrices via a short-time Fourier transform.
package spectrogram

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/rf-watch/gnss-sentry/internal/iq"
)

const (
	DefaultFFTSize = 2048
	DefaultOverlap = 0.5

	// epsilon keeps log10 finite on empty bins.
	epsilon = 1e-12
)

// Spectrogram is a DC-centered time/frequency power matrix. Frequencies
// are strictly increasing Hz offsets from the capture center frequency;
// Times are seconds from the start of the sample block. PowerDB is
// indexed [frequency][time]. A Spectrogram is produced once per analysis
// run and is read-only afterwards.
type Spectrogram struct {
	Frequencies []float64
	Times       []float64
	PowerDB     [][]float64
}

// FrequencyResolution returns the width of one frequency bin in Hz.
func (s *Spectrogram) FrequencyResolution() float64 {
	if len(s.Frequencies) < 2 {
		return 0
	}
	return s.Frequencies[1] - s.Frequencies[0]
}

// Engine computes spectrograms with fixed transform parameters. The
// rectangular (boxcar) window is deliberate: narrow continuous-wave
// interference lines must stay sharp rather than being smeared by a
// tapered window.
type Engine struct {
	fftSize  int
	overlap  float64
	workers  int
	edgeTrim time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithOverlap sets the frame overlap fraction in [0, 1).
func WithOverlap(overlap float64) Option {
	return func(e *Engine) {
		e.overlap = overlap
	}
}

// WithWorkers sets the number of goroutines computing FFT frames.
// The output is bit-identical for any worker count.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithEdgeTrim sets the duration trimmed from each end of the time axis
// to drop radio-settling artifacts. Zero disables trimming.
func WithEdgeTrim(d time.Duration) Option {
	return func(e *Engine) {
		e.edgeTrim = d
	}
}

// NewEngine creates an Engine with the given FFT size. Larger sizes
// trade time resolution for frequency resolution and raise the variance
// per bin.
func NewEngine(fftSize int, options ...Option) (*Engine, error) {
	if fftSize <= 0 {
		return nil, fmt.Errorf("invalid FFT size %d", fftSize)
	}

	e := Engine{
		fftSize:  fftSize,
		overlap:  DefaultOverlap,
		workers:  runtime.NumCPU(),
		edgeTrim: 100 * time.Millisecond,
	}
	for _, option := range options {
		option(&e)
	}

	if e.overlap < 0 || e.overlap >= 1 {
		return nil, fmt.Errorf("invalid overlap fraction %f", e.overlap)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return &e, nil
}

// Compute runs the transform over a sample block. It fails with
// iq.ErrFormat when the block is shorter than one FFT frame.
func (e *Engine) Compute(block *iq.SampleBlock) (*Spectrogram, error) {
	n := e.fftSize
	if len(block.Samples) < n {
		return nil, fmt.Errorf("%w: %d samples, need at least %d for one frame", iq.ErrFormat, len(block.Samples), n)
	}

	hop := int(float64(n) * (1 - e.overlap))
	if hop < 1 {
		hop = 1
	}
	frames := (len(block.Samples)-n)/hop + 1

	power := make([][]float64, n)
	for i := range power {
		power[i] = make([]float64, frames)
	}

	// Each worker owns a disjoint set of output columns and its own FFT
	// plan, so the result does not depend on the degree of parallelism.
	var wg sync.WaitGroup
	frameCh := make(chan int)
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			fft := fourier.NewCmplxFFT(n)
			frame := make([]complex128, n)
			for t := range frameCh {
				start := t * hop
				copy(frame, block.Samples[start:start+n])
				coeffs := fft.Coefficients(nil, frame)

				// Shift so index 0 is the most negative frequency and
				// index n/2 is DC.
				for i := 0; i < n; i++ {
					c := coeffs[(i+n/2)%n]
					power[i][t] = 10 * math.Log10(real(c)*real(c)+imag(c)*imag(c)+epsilon)
				}
			}
		}()
	}
	for t := 0; t < frames; t++ {
		frameCh <- t
	}
	close(frameCh)
	wg.Wait()

	freqs := make([]float64, n)
	for i := range freqs {
		freqs[i] = float64(i-n/2) * block.SampleRate / float64(n)
	}

	times := make([]float64, frames)
	for t := range times {
		times[t] = float64(t*hop) / block.SampleRate
	}

	s := &Spectrogram{Frequencies: freqs, Times: times, PowerDB: power}
	e.trimEdges(s, block.SampleRate, hop)
	return s, nil
}

// trimEdges drops frames within edgeTrim of either end of the block.
// Skipped entirely when too few frames would remain.
func (e *Engine) trimEdges(s *Spectrogram, sampleRate float64, hop int) {
	if e.edgeTrim <= 0 {
		return
	}

	trim := int(e.edgeTrim.Seconds() * sampleRate / float64(hop))
	if trim <= 0 || len(s.Times) <= 2*trim+1 {
		return
	}

	s.Times = s.Times[trim : len(s.Times)-trim]
	for i := range s.PowerDB {
		s.PowerDB[i] = s.PowerDB[i][trim : len(s.PowerDB[i])-trim]
	}
}
