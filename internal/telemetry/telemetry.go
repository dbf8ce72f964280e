package telemetry

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	// Endpoint is the collector base URL; /v1/traces and /v1/metrics are
	// appended when it has no path.
	Endpoint    string            `json:"otlp_http_endpoint"`
	Headers     map[string]string `json:"headers"`
	ServiceName string            `json:"service_name"`
}

// Telemetry owns the installed providers. The zero value is a no-op.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Enabled() bool { return t.TracerProvider != nil }

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.TracerProvider != nil {
		errs = append(errs, t.TracerProvider.Shutdown(ctx))
	}
	if t.MeterProvider != nil {
		errs = append(errs, t.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// signalURL appends the per-signal path to a bare collector URL.
func signalURL(base, signal string) string {
	u, err := url.Parse(base)
	if err != nil || strings.Trim(u.Path, "/") != "" {
		return base
	}
	u.Path = "/v1/" + signal
	return u.String()
}

// Setup installs OTLP/HTTP trace and metric exporters when an endpoint is
// configured. Without one the global no-op providers stay in place.
func Setup(ctx context.Context, cfg Config) (Telemetry, error) {
	if cfg.Endpoint == "" {
		return Telemetry{}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "xepelin-blog-scraper"
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return Telemetry{}, err
	}

	traceExporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(signalURL(cfg.Endpoint, "traces")),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return Telemetry{}, err
	}
	metricExporter, err := otlpmetrichttp.New(
		ctx,
		otlpmetrichttp.WithEndpointURL(signalURL(cfg.Endpoint, "metrics")),
		otlpmetrichttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return Telemetry{}, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(r),
	)
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(15*time.Second))),
		metric.WithResource(r),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return Telemetry{TracerProvider: tp, MeterProvider: mp}, nil
}
