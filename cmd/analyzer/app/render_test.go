package app

import (
	"image/color"
	"testing"

	"github.com/rf-watch/gnss-sentry/internal/spectrogram"
)

func testSpectrogram(t *testing.T, bins, frames int) *spectrogram.Spectrogram {
	t.Helper()
	s := &spectrogram.Spectrogram{
		Frequencies: make([]float64, bins),
		Times:       make([]float64, frames),
		PowerDB:     make([][]float64, bins),
	}
	for i := range s.Frequencies {
		s.Frequencies[i] = float64(i-bins/2) * 1000
	}
	for i := range s.Times {
		s.Times[i] = float64(i) * 0.01
	}
	for row := range s.PowerDB {
		s.PowerDB[row] = make([]float64, frames)
		for tt := range s.PowerDB[row] {
			s.PowerDB[row][tt] = -100 + float64((row+tt)%60)
		}
	}
	return s
}

func TestRender_Bare(t *testing.T) {
	s := testSpectrogram(t, 32, 100)
	img, err := NewWaterfallRenderer(RenderConfig{Theme: ThermalTheme}).Render(s, 1575.42e6, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 32 {
		t.Errorf("image is %dx%d, want 100x32 without borders", bounds.Dx(), bounds.Dy())
	}
}

func TestRender_Decimation(t *testing.T) {
	s := testSpectrogram(t, 16, 1000)
	img, err := NewWaterfallRenderer(RenderConfig{Theme: GrayscaleTheme, MaxWidth: 256}).Render(s, 0, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got := img.Bounds().Dx(); got > 256 {
		t.Errorf("image width = %d, want at most 256", got)
	}
}

func TestRender_Empty(t *testing.T) {
	s := &spectrogram.Spectrogram{}
	if _, err := NewWaterfallRenderer(RenderConfig{}).Render(s, 0, nil); err == nil {
		t.Fatal("empty spectrogram should fail")
	}
}

func TestRender_MissingFont(t *testing.T) {
	s := testSpectrogram(t, 16, 50)
	_, err := NewWaterfallRenderer(RenderConfig{FontFile: "does-not-exist.ttf"}).Render(s, 0, nil)
	if err == nil {
		t.Fatal("missing font file should fail")
	}
}

func TestPowerHistogramBounds(t *testing.T) {
	h := NewPowerHistogram()

	// 100 values at -90 dB with a handful of hot outliers: the
	// percentile bounds must shrug the outliers off.
	for i := 0; i < 100; i++ {
		h.Update(-90 + float64(i%20))
	}
	for i := 0; i < 3; i++ {
		h.Update(40)
	}

	bounds := h.Bounds()
	if bounds.Max > 0 {
		t.Errorf("max bound = %f, should ignore the outliers", bounds.Max)
	}
	if bounds.Min > -80 {
		t.Errorf("min bound = %f, want near the bulk floor", bounds.Min)
	}
	if bounds.Max-bounds.Min < minimumRangeDB {
		t.Errorf("span = %f dB, want at least %d", bounds.Max-bounds.Min, minimumRangeDB)
	}
}

func TestPowerHistogramDefaults(t *testing.T) {
	h := NewPowerHistogram()
	h.Update(-50)

	if got, want := h.Bounds(), defaultPowerBounds(); got != want {
		t.Errorf("bounds with too few samples = %+v, want defaults %+v", got, want)
	}
}

func TestColorMapperClamps(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, PowerBounds{Min: -100, Max: 0})

	if got := cm.GetColor(-500); got != (color.RGBA{A: 255}) {
		t.Errorf("below-range color = %v, want black", got)
	}
	if got := cm.GetColor(500); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("above-range color = %v, want white", got)
	}
}
