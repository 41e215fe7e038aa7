package monitoring

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const meterName = "vimarsh"

// Config controls the metrics endpoint.
type Config struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"`
}

func DefaultConfig() *Config {
	return &Config{Enabled: true, Path: "/metrics"}
}

// Service owns the OTel meter provider and its Prometheus registry. A
// disabled service hands out a no-op meter so instrumented code never
// branches on monitoring state.
type Service struct {
	config   *Config
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prom.Registry
	enabled  bool
}

func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		log.Debug("monitoring disabled, using no-op meter")
		return &Service{config: cfg, meter: noop.NewMeterProvider().Meter(meterName)}, nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("init prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	log.Info("monitoring initialized", "path", cfg.Path)
	return &Service{
		config:   cfg,
		meter:    provider.Meter(meterName),
		provider: provider,
		registry: registry,
		enabled:  true,
	}, nil
}

// Meter returns the meter for custom instrumentation.
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// Enabled reports whether the scrape endpoint should be registered.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Path returns the scrape endpoint path.
func (s *Service) Path() string {
	return s.config.Path
}

// Handler serves the Prometheus scrape endpoint.
func (s *Service) Handler() http.Handler {
	if !s.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(ctx)
}
