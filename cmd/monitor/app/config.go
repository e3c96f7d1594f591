package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rf-watch/gnss-sentry/internal/classify"
)

// Config is the main monitor configuration, loaded from YAML.
type Config struct {
	Settings   Settings         `yaml:"settings"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

// Settings holds global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level maps the configured log level name onto slog levels. Unknown
// names fall back to info.
func (s Settings) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ReceiverConfig identifies the telemetry source being monitored.
type ReceiverConfig struct {
	// Name labels the receiver in sessions, logs and metrics.
	Name string `yaml:"name"`

	// Source is the path of the receiver's monitor output stream:
	// a file, a FIFO, or "-" for stdin.
	Source string `yaml:"source"`
}

// StorageConfig holds verdict storage settings.
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// MetricsConfig holds the Prometheus exposition endpoint settings.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listenAddress"`
}

// ClassifierConfig overrides individual classifier thresholds. Omitted
// values keep their defaults.
type ClassifierConfig struct {
	HistoryWindow        int     `yaml:"historyWindow"`
	JammingThresholdDBHz float64 `yaml:"jammingThresholdDBHz"`
	VariationGateDB      float64 `yaml:"variationGateDB"`
	SpoofingVariationDB  float64 `yaml:"spoofingVariationDB"`
	MinHistory           int     `yaml:"minHistory"`

	SevereCN0DBHz   float64 `yaml:"severeCN0DBHz"`
	HeavyCN0DBHz    float64 `yaml:"heavyCN0DBHz"`
	ModerateCN0DBHz float64 `yaml:"moderateCN0DBHz"`

	CorrelationGate         float64 `yaml:"correlationGate"`
	SpoofDopplerVariationHz float64 `yaml:"spoofDopplerVariationHz"`
	LowDopplerVariationHz   float64 `yaml:"lowDopplerVariationHz"`
	LowDopplerMinHistory    int     `yaml:"lowDopplerMinHistory"`

	UniformCN0StdDB   float64 `yaml:"uniformCN0StdDB"`
	SelectiveSpreadDB float64 `yaml:"selectiveSpreadDB"`
	MatchedPowerStdDB float64 `yaml:"matchedPowerStdDB"`
	CVNorm            float64 `yaml:"cvNorm"`
}

// Classify returns the classifier configuration with the overrides
// applied.
func (c ClassifierConfig) Classify() classify.Config {
	return classify.Config{
		HistoryWindow:        c.HistoryWindow,
		JammingThresholdDBHz: c.JammingThresholdDBHz,
		VariationGateDB:      c.VariationGateDB,
		SpoofingVariationDB:  c.SpoofingVariationDB,
		MinHistory:           c.MinHistory,

		SevereCN0DBHz:   c.SevereCN0DBHz,
		HeavyCN0DBHz:    c.HeavyCN0DBHz,
		ModerateCN0DBHz: c.ModerateCN0DBHz,

		CorrelationGate:         c.CorrelationGate,
		SpoofDopplerVariationHz: c.SpoofDopplerVariationHz,
		LowDopplerVariationHz:   c.LowDopplerVariationHz,
		LowDopplerMinHistory:    c.LowDopplerMinHistory,

		UniformCN0StdDB:   c.UniformCN0StdDB,
		SelectiveSpreadDB: c.SelectiveSpreadDB,
		MatchedPowerStdDB: c.MatchedPowerStdDB,
		CVNorm:            c.CVNorm,
	}
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Receiver.Name == "" {
		return nil, fmt.Errorf("receiver name is required")
	}
	if config.Receiver.Source == "" {
		return nil, fmt.Errorf("receiver source is required")
	}
	if config.Metrics.Enabled && config.Metrics.ListenAddress == "" {
		return nil, fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return &config, nil
}
