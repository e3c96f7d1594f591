package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	// Capture parameters.
	InputFile       string
	SampleRate      float64
	CenterFrequency float64
	MaxDuration     time.Duration
	SettleSkip      time.Duration

	// Transform parameters.
	FFTSize int
	Overlap float64

	// Outputs.
	ReportFile  string
	HeatmapFile string
	Format      ImageFormat
	Theme       ColorTheme
	FontFile    string
	DBPath      string
	Receiver    string

	Verbose bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    ThermalTheme,
		Receiver: "analyzer",
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	var maxDuration, settleSkip float64
	flag.StringVar(&c.InputFile, "i", "", "Path to the raw IQ capture (interleaved float32 pairs)")
	flag.Float64Var(&c.SampleRate, "r", 0, "Capture sample rate in Hz")
	flag.Float64Var(&c.CenterFrequency, "c", 1575.42e6, "Capture center frequency in Hz")
	flag.Float64Var(&maxDuration, "d", 0, "Maximum capture duration to analyze, seconds (0 for all)")
	flag.Float64Var(&settleSkip, "skip", 0, "Capture lead-in to skip, seconds")
	flag.IntVar(&c.FFTSize, "fft", 0, "FFT size (0 for default)")
	flag.Float64Var(&c.Overlap, "overlap", 0.5, "Frame overlap fraction [0, 1)")
	flag.StringVar(&c.ReportFile, "o", "-", "Path of the JSON report, or - for stdout")
	flag.StringVar(&c.HeatmapFile, "heatmap", "", "Optional path of the rendered spectrogram image")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Heatmap image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", string(ThermalTheme), "Heatmap color theme. [classic, grayscale, thermal]")
	flag.StringVar(&c.FontFile, "font", "", "Optional TTF font for heatmap annotations")
	flag.StringVar(&c.DBPath, "db", "", "Optional SQLite database to record the report in")
	flag.StringVar(&c.Receiver, "receiver", c.Receiver, "Receiver name recorded with the session")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	var err error
	if c.InputFile == "" {
		err = errors.New("input file is required")
	} else if c.SampleRate <= 0 {
		err = errors.New("sample rate is required")
	} else if c.Overlap < 0 || c.Overlap >= 1 {
		err = errors.New("overlap must be in [0, 1)")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validColorThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.MaxDuration = time.Duration(maxDuration * float64(time.Second))
	c.SettleSkip = time.Duration(settleSkip * float64(time.Second))
	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	return c, nil
}
