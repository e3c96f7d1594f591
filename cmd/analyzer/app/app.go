package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"

	"github.com/rf-watch/gnss-sentry/internal/detect"
	"github.com/rf-watch/gnss-sentry/internal/iq"
	"github.com/rf-watch/gnss-sentry/internal/spectrogram"
	"github.com/rf-watch/gnss-sentry/internal/storage"
)

// Run executes one offline analysis: load the capture, compute the
// spectrogram, run the detector bank, then emit the report and any
// optional outputs.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	var loadOpts []iq.LoadOption
	if config.MaxDuration > 0 {
		loadOpts = append(loadOpts, iq.WithMaxSamples(int(config.MaxDuration.Seconds()*config.SampleRate)))
	}
	if config.SettleSkip > 0 {
		loadOpts = append(loadOpts, iq.WithSettleSkip(config.SettleSkip))
	}

	block, err := iq.LoadFile(config.InputFile, config.SampleRate, config.CenterFrequency, loadOpts...)
	if err != nil {
		return fmt.Errorf("loading capture: %w", err)
	}

	logger.Info("capture loaded",
		slog.String("file", config.InputFile),
		slog.Int("samples", len(block.Samples)),
		slog.String("duration", block.Duration().String()),
		slog.String("sampleRate", humanHz(block.SampleRate)),
		slog.String("centerFreq", humanHz(block.CenterFrequency)))

	fftSize := config.FFTSize
	if fftSize <= 0 {
		fftSize = spectrogram.DefaultFFTSize
	}
	engine, err := spectrogram.NewEngine(fftSize, spectrogram.WithOverlap(config.Overlap))
	if err != nil {
		return fmt.Errorf("configuring transform: %w", err)
	}

	spec, err := engine.Compute(block)
	if err != nil {
		return fmt.Errorf("computing spectrogram: %w", err)
	}

	if config.Verbose {
		logger.Info("spectrogram computed",
			slog.Int("frames", len(spec.Times)),
			slog.Int("bins", len(spec.Frequencies)),
			slog.String("resolution", humanHz(spec.FrequencyResolution())))
	}

	report, err := detect.NewBank(nil, detect.WithBankLogger(logger)).
		Analyze(ctx, detect.Input{Block: block, Spectrogram: spec})
	if err != nil {
		return fmt.Errorf("running detectors: %w", err)
	}

	if report.Summary.JammingDetected {
		logger.Warn("interference detected",
			slog.String("primaryThreat", string(report.Summary.PrimaryThreat)),
			slog.Float64("confidence", report.Summary.MaxConfidence))
	} else {
		logger.Info("no interference detected")
	}

	if err := writeReport(config.ReportFile, report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if config.DBPath != "" {
		if err := storeReport(ctx, config, report); err != nil {
			return fmt.Errorf("recording report: %w", err)
		}
	}

	if config.HeatmapFile != "" {
		if err := renderHeatmap(config, spec, block.CenterFrequency, report); err != nil {
			return fmt.Errorf("rendering heatmap: %w", err)
		}
		logger.Info("heatmap written", slog.String("file", config.HeatmapFile))
	}
	return nil
}

func writeReport(path string, report *detect.Report) error {
	var out io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func storeReport(ctx context.Context, config *Config, report *detect.Report) (err error) {
	store := storage.NewSqliteStore(config.DBPath)
	defer func() {
		if cErr := store.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	sessionID, err := store.CreateSession(ctx, config.Receiver, config.InputFile, config)
	if err != nil {
		return err
	}
	return store.StoreReport(ctx, sessionID, report)
}

func renderHeatmap(config *Config, spec *spectrogram.Spectrogram, centerFrequency float64, report *detect.Report) error {
	renderer := NewWaterfallRenderer(RenderConfig{
		Theme:    config.Theme,
		FontFile: config.FontFile,
	})

	img, err := renderer.Render(spec, centerFrequency, report)
	if err != nil {
		return err
	}

	out, err := os.Create(config.HeatmapFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(out, img)
	}
}
