package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/debris-avoidance-sim/internal/logging"
)

// DefaultServiceName is reported when TraceSettings.ServiceName is empty.
const DefaultServiceName = "debris-sim"

// TraceSettings selects the span exporter and sampling for a run.
type TraceSettings struct {
	Enabled bool
	// Exporter is "stdout" or "otlp".
	Exporter string
	// Endpoint is the OTLP/gRPC collector address, default localhost:4317.
	Endpoint string
	// Insecure dials the collector without TLS.
	Insecure    bool
	ServiceName string
	// SampleRatio is the fraction of root spans kept; 1 keeps every tick.
	SampleRatio float64
	// Attributes are added to the resource, e.g. the scenario path.
	Attributes map[string]string
	// Writer receives stdout-exporter spans. Defaults to stderr so snapshot
	// output stays machine readable.
	Writer io.Writer
}

// Tracing owns the tracer provider of one process.
type Tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
	log      logging.Logger
}

// StartTracing installs a tracer provider built from s as the global
// provider. With tracing disabled it installs a noop provider and Close does
// nothing.
func StartTracing(ctx context.Context, s TraceSettings, log logging.Logger) (*Tracing, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !s.Enabled {
		provider := noop.NewTracerProvider()
		otel.SetTracerProvider(provider)
		log.Debug(ctx, "tracing disabled")
		return &Tracing{provider: provider, log: log}, nil
	}

	exp, err := newExporter(ctx, s)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, s)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(rootSampler(s.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", strings.ToLower(s.Exporter)),
		logging.Float("sample_ratio", s.SampleRatio),
	)
	return &Tracing{provider: tp, shutdown: tp.Shutdown, log: log}, nil
}

// Tracer returns a named tracer from the owned provider.
func (t *Tracing) Tracer(name string) trace.Tracer {
	return t.provider.Tracer(name)
}

// Close flushes pending spans, giving up after five seconds. Failures are
// logged, not returned, because they happen on the way out.
func (t *Tracing) Close(ctx context.Context) {
	if t == nil || t.shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.shutdown(ctx); err != nil {
		t.log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

func rootSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newResource(ctx context.Context, s TraceSettings) (*resource.Resource, error) {
	service := s.ServiceName
	if service == "" {
		service = DefaultServiceName
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", service),
		attribute.String("service.namespace", "orbitsim"),
	}
	keys := make([]string, 0, len(s.Attributes))
	for k := range s.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, s.Attributes[k]))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	return res, nil
}

func newExporter(ctx context.Context, s TraceSettings) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(s.Exporter) {
	case "stdout", "":
		w := s.Writer
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp":
		endpoint := s.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if s.Insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(
				grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", s.Exporter)
	}
}
