package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"

	"github.com/rf-watch/gnss-sentry/internal/detect"
	"github.com/rf-watch/gnss-sentry/internal/spectrogram"
)

const (
	dpi      = 72.0
	fontSize = 12.0

	tickMarkLength = 5
	pixelsPerTick  = 120

	defaultMaxWidth = 2048

	// Border sizes in pixels, used only when annotations are drawn.
	topBorder    = 30
	leftBorder   = 80
	bottomBorder = 40
	rightBorder  = 10
)

// RenderConfig configures the waterfall renderer.
type RenderConfig struct {
	Theme ColorTheme

	// FontFile is a TTF font used for scales and labels. Without one
	// the renderer produces a bare waterfall.
	FontFile string

	// MaxWidth caps the image width in pixels; longer captures are
	// decimated by max-holding adjacent frames.
	MaxWidth int
}

// WaterfallRenderer draws a spectrogram as a waterfall image, time
// running left to right and frequency bottom to top.
type WaterfallRenderer struct {
	config RenderConfig
}

func NewWaterfallRenderer(config RenderConfig) *WaterfallRenderer {
	if config.MaxWidth <= 0 {
		config.MaxWidth = defaultMaxWidth
	}
	return &WaterfallRenderer{config: config}
}

// Render produces the waterfall image. The report, when given, is
// summarized in the top border next to the capture parameters.
func (r *WaterfallRenderer) Render(s *spectrogram.Spectrogram, centerFrequency float64, report *detect.Report) (*image.RGBA, error) {
	if len(s.Times) == 0 || len(s.Frequencies) == 0 {
		return nil, fmt.Errorf("empty spectrogram")
	}

	width := len(s.Times)
	decim := 1
	if width > r.config.MaxWidth {
		decim = (width + r.config.MaxWidth - 1) / r.config.MaxWidth
		width = (width + decim - 1) / decim
	}
	height := len(s.Frequencies)

	// One decimated pass for pixel values and display bounds together.
	hist := NewPowerHistogram()
	pixels := make([][]float64, height)
	for row := range s.PowerDB {
		line := make([]float64, width)
		for x := 0; x < width; x++ {
			v := s.PowerDB[row][x*decim]
			for t := x*decim + 1; t < (x+1)*decim && t < len(s.Times); t++ {
				if s.PowerDB[row][t] > v {
					v = s.PowerDB[row][t]
				}
			}
			line[x] = v
			hist.Update(v)
		}
		pixels[row] = line
	}
	mapper := NewColorMapper(r.config.Theme, hist.Bounds())

	annotate := r.config.FontFile != ""
	area := image.Rect(0, 0, width, height)
	if annotate {
		area = area.Add(image.Pt(leftBorder, topBorder))
	}

	fullWidth, fullHeight := width, height
	if annotate {
		fullWidth += leftBorder + rightBorder
		fullHeight += topBorder + bottomBorder
	}

	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// Row 0 of the spectrogram is the most negative frequency; flip so
	// frequency increases upwards.
	for row, line := range pixels {
		imgY := area.Min.Y + (height - 1 - row)
		for x, v := range line {
			img.Set(area.Min.X+x, imgY, mapper.GetColor(v))
		}
	}

	if annotate {
		ann, err := newAnnotator(r.config.FontFile)
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		if err := ann.annotate(img, area, s, centerFrequency, report); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}
	return img, nil
}

type annotator struct {
	context *freetype.Context
}

func newAnnotator(fontFile string) (*annotator, error) {
	fontBytes, err := os.ReadFile(fontFile)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingFull)
	ctx.SetSrc(image.Black)

	return &annotator{context: ctx}, nil
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, s *spectrogram.Spectrogram, centerFrequency float64, report *detect.Report) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing frequency scale", func() error { return a.drawFrequencyScale(img, area, s, centerFrequency) }},
		{"drawing time scale", func() error { return a.drawTimeScale(img, area, s) }},
		{"drawing summary", func() error { return a.drawSummary(area, centerFrequency, report) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, area image.Rectangle, s *spectrogram.Spectrogram, centerFrequency float64) error {
	height := area.Dy()
	count := height / pixelsPerTick
	if count < 2 {
		count = 2
	}

	lo := s.Frequencies[0]
	hi := s.Frequencies[len(s.Frequencies)-1]
	for i := 0; i <= count; i++ {
		frac := float64(i) / float64(count)
		freq := lo + (hi-lo)*frac
		y := area.Max.Y - 1 - int(frac*float64(height-1))

		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		pt := freetype.Pt(3, y+4)
		if _, err := a.context.DrawString(humanHz(centerFrequency+freq), pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, s *spectrogram.Spectrogram) error {
	width := area.Dx()
	count := width / pixelsPerTick
	if count < 2 {
		count = 2
	}

	start := s.Times[0]
	end := s.Times[len(s.Times)-1]
	for i := 0; i <= count; i++ {
		frac := float64(i) / float64(count)
		x := area.Min.X + int(frac*float64(width-1))

		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.2fs", start+(end-start)*frac)
		pt := freetype.Pt(x-10, area.Max.Y+tickMarkLength+12)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawSummary(area image.Rectangle, centerFrequency float64, report *detect.Report) error {
	var sb strings.Builder
	sb.WriteString("Center: " + humanHz(centerFrequency))

	if report != nil {
		if report.Summary.JammingDetected {
			sb.WriteString(fmt.Sprintf("; %s detected (%.2f)",
				report.Summary.PrimaryThreat, report.Summary.MaxConfidence))
		} else {
			sb.WriteString("; no interference detected")
		}
	}

	pt := freetype.Pt(area.Min.X, topBorder-10)
	_, err := a.context.DrawString(sb.String(), pt)
	return err
}

func humanHz(hz float64) string {
	value, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f %sHz", value, suffix)
}
