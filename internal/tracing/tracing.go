package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Режимы экспорта трейсов.
const (
	ModeNone   = "none"
	ModeStdout = "stdout"
	ModeOTLP   = "otlp"
)

// Config задаёт параметры трейсинга.
type Config struct {
	Mode         string
	ServiceName  string
	Version      string
	OTLPEndpoint string
	Insecure     bool
	// Writer для stdout-экспортера, по умолчанию os.Stdout.
	Writer io.Writer
}

// ShutdownFunc сбрасывает накопленные span и останавливает провайдер.
type ShutdownFunc func(context.Context) error

// Setup настраивает глобальный TracerProvider по cfg.
// В режиме none возвращается noop-провайдер, а глобальный не меняется.
func Setup(ctx context.Context, cfg Config, logger *log.Entry) (trace.TracerProvider, ShutdownFunc, error) {
	if logger == nil {
		logger = log.WithField("component", "tracing")
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" || mode == ModeNone {
		return nooptrace.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, mode, cfg)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build tracing resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.WithFields(log.Fields{
		"mode":     mode,
		"endpoint": cfg.OTLPEndpoint,
	}).Info("tracing enabled")

	return provider, provider.Shutdown, nil
}

func newExporter(ctx context.Context, mode string, cfg Config) (sdktrace.SpanExporter, error) {
	switch mode {
	case ModeStdout:
		writer := cfg.Writer
		if writer == nil {
			writer = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		return exporter, nil
	case ModeOTLP:
		opts := []otlptracehttp.Option{}
		if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported tracing mode %q", mode)
	}
}
