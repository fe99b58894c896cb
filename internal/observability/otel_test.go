package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wa-inbox/internal/config"
)

func preserveOTelGlobals(t *testing.T) func() {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	return func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	}
}

func collectorConfig(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_DisabledIsNoOp(t *testing.T) {
	defer preserveOTelGlobals(t)()
	prevTP := otel.GetTracerProvider()

	cfg := collectorConfig("wa-inbox", true)
	cfg.Enabled = false
	shutdown, err := SetupOTel(context.Background(), cfg, "v0.0.0")
	if err != nil || shutdown == nil {
		t.Fatalf("SetupOTel = %p, %v", shutdown, err)
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("disabled tracing replaced the tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

// Exporters connect lazily, so setup succeeds without a collector.
func TestSetupOTel_InstallsProvider(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name string
		ctx  context.Context
		cfg  config.OTELConfig
	}{
		{"insecure", context.Background(), collectorConfig("api", true)},
		{"tls", context.Background(), collectorConfig("worker", false)},
		{"cancelled setup context", cancelled, collectorConfig("migrate", true)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer preserveOTelGlobals(t)()

			shutdown, err := SetupOTel(tc.ctx, tc.cfg, "v1.2.3")
			if err != nil {
				t.Fatalf("SetupOTel: %v", err)
			}
			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("expected *sdktrace.TracerProvider, got %T", otel.GetTracerProvider())
			}

			ctx, span := otel.Tracer("outbox").Start(context.Background(), "DrainOne",
				trace.WithSpanKind(trace.SpanKindInternal))
			carrier := propagation.MapCarrier{}
			otel.GetTextMapPropagator().Inject(ctx, carrier)
			span.End()
			if carrier.Get("traceparent") == "" {
				t.Fatalf("traceparent not propagated: %v", carrier)
			}

			sctx, scancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer scancel()
			if err := shutdown(sctx); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}

func TestSetupOTel_FailuresLeaveGlobalsIntact(t *testing.T) {
	cases := []struct {
		name  string
		breakSetup func() (restore func())
	}{
		{"exporter", func() func() {
			orig := newOTLPExporterFn
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("exporter unavailable")
			}
			return func() { newOTLPExporterFn = orig }
		}},
		{"resource", func() func() {
			orig := newServiceResourceFn
			newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("resource unavailable")
			}
			return func() { newServiceResourceFn = orig }
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer preserveOTelGlobals(t)()
			defer tc.breakSetup()()

			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()
			if _, err := SetupOTel(context.Background(), collectorConfig("api", true), "v0"); err == nil {
				t.Fatalf("expected error")
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestInstrumentGORM_RegistersPlugin(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:otel_gorm?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := InstrumentGORM(db); err != nil {
		t.Fatalf("InstrumentGORM: %v", err)
	}
	// registering twice is rejected by gorm
	if err := InstrumentGORM(db); err == nil {
		t.Fatalf("expected duplicate plugin error")
	}

	var n int
	if err := db.Raw("SELECT 1").Scan(&n).Error; err != nil || n != 1 {
		t.Fatalf("query through instrumented db: n=%d err=%v", n, err)
	}
}

func TestSampler_RatioBounds(t *testing.T) {
	cases := map[float64]string{
		1:   "ParentBased{root:AlwaysOnSampler",
		2:   "ParentBased{root:AlwaysOnSampler",
		0:   "ParentBased{root:AlwaysOffSampler",
		-1:  "ParentBased{root:AlwaysOffSampler",
		0.5: "ParentBased{root:TraceIDRatioBased{0.5}",
	}
	for ratio, prefix := range cases {
		if got := sampler(ratio).Description(); !strings.HasPrefix(got, prefix) {
			t.Fatalf("sampler(%v) = %q; want prefix %q", ratio, got, prefix)
		}
	}
}
