package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rf-watch/gnss-sentry/internal/classify"
)

// Metrics exposes the monitor's state for Prometheus scraping.
type Metrics struct {
	registry *prometheus.Registry

	epochs      prometheus.Counter
	parseErrors prometheus.Counter
	verdicts    *prometheus.CounterVec

	jammed     prometheus.Gauge
	confidence prometheus.Gauge
	avgCN0     prometheus.Gauge
	satellites prometheus.Gauge

	lastParseErrors uint64
}

// NewMetrics creates the metric set labeled with the receiver name.
func NewMetrics(receiver string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"receiver": receiver}

	return &Metrics{
		registry: registry,
		epochs: factory.NewCounter(prometheus.CounterOpts{
			Name:        "gnss_sentry_epochs_total",
			Help:        "Telemetry epochs processed.",
			ConstLabels: labels,
		}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name:        "gnss_sentry_epoch_parse_errors_total",
			Help:        "Malformed telemetry lines dropped.",
			ConstLabels: labels,
		}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "gnss_sentry_jamming_verdicts_total",
			Help:        "Jamming verdicts by severity.",
			ConstLabels: labels,
		}, []string{"severity"}),
		jammed: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gnss_sentry_jamming_active",
			Help:        "Whether the latest epoch was classified as jammed.",
			ConstLabels: labels,
		}),
		confidence: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gnss_sentry_jamming_confidence",
			Help:        "Confidence of the latest verdict.",
			ConstLabels: labels,
		}),
		avgCN0: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gnss_sentry_avg_cn0_dbhz",
			Help:        "Average carrier-to-noise density of tracked satellites.",
			ConstLabels: labels,
		}),
		satellites: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gnss_sentry_tracked_satellites",
			Help:        "Satellites contributing to the latest epoch.",
			ConstLabels: labels,
		}),
	}
}

// Observe folds one verdict into the metric set.
func (m *Metrics) Observe(v classify.Verdict, parseErrors uint64) {
	m.epochs.Inc()

	if v.Jammed {
		m.jammed.Set(1)
		m.verdicts.WithLabelValues(string(v.Severity)).Inc()
	} else {
		m.jammed.Set(0)
	}
	m.confidence.Set(v.Confidence)
	m.avgCN0.Set(v.Stats.AvgCN0DBHz)
	m.satellites.Set(float64(v.Stats.TrackedSatellites))

	// The feed tracks its own cumulative drop count; mirror the delta.
	if parseErrors > m.lastParseErrors {
		m.parseErrors.Add(float64(parseErrors - m.lastParseErrors))
		m.lastParseErrors = parseErrors
	}
}

// Serve runs the exposition endpoint until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("metrics endpoint listening", slog.String("address", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
