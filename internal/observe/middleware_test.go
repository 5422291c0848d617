package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// middlewareFixture bundles everything a middleware test touches: the wrapped
// handler chain, the metric reader, and the span exporter.
type middlewareFixture struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	return &middlewareFixture{metrics: m, reader: reader, spans: exp}
}

// serve runs one request through the middleware with the given handler and
// returns the recorder.
func (f *middlewareFixture) serve(t *testing.T, req *http.Request, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	Middleware(f.metrics)(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareCorrelationID(t *testing.T) {
	f := newMiddlewareFixture(t)

	var inHandler string
	rec := f.serve(t, httptest.NewRequest("GET", "/recordings", nil),
		func(w http.ResponseWriter, r *http.Request) {
			inHandler = CorrelationID(r.Context())
		})

	if !hexID.MatchString(inHandler) {
		t.Errorf("handler saw correlation ID %q, want 32 hex chars", inHandler)
	}
	if hdr := rec.Header().Get("X-Correlation-ID"); hdr != inHandler {
		t.Errorf("X-Correlation-ID = %q, handler saw %q", hdr, inHandler)
	}
}

func TestMiddlewareSpanPerRequest(t *testing.T) {
	f := newMiddlewareFixture(t)

	f.serve(t, httptest.NewRequest("GET", "/span-test", nil),
		func(w http.ResponseWriter, r *http.Request) {})

	spans := f.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /span-test" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /span-test")
	}
}

func TestMiddlewareDurationMetric(t *testing.T) {
	f := newMiddlewareFixture(t)

	f.serve(t, httptest.NewRequest("GET", "/timed", nil),
		func(w http.ResponseWriter, r *http.Request) {})

	rm := collect(t, f.reader)
	met := findMetric(rm, "recapd.http.request.duration")
	if met == nil {
		t.Fatal("recapd.http.request.duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	if got := attrValue(dp.Attributes, "method"); got != "GET" {
		t.Errorf("method attr = %q, want GET", got)
	}
	if got := attrValue(dp.Attributes, "path"); got != "/timed" {
		t.Errorf("path attr = %q, want /timed", got)
	}
}

func TestMiddlewareStatusCodeOnSpan(t *testing.T) {
	f := newMiddlewareFixture(t)

	rec := f.serve(t, httptest.NewRequest("GET", "/missing", nil),
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	spans := f.spans.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	var code int64
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			code = a.Value.AsInt64()
		}
	}
	if code != 404 {
		t.Errorf("span http.response.status_code = %d, want 404", code)
	}
}

func TestMiddlewareContinuesUpstreamTrace(t *testing.T) {
	f := newMiddlewareFixture(t)
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	req := httptest.NewRequest("GET", "/propagate", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := f.serve(t, req, func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	})

	if inHandler != upstream {
		t.Errorf("handler correlation ID = %q, want upstream trace %q", inHandler, upstream)
	}
	if hdr := rec.Header().Get("X-Correlation-ID"); hdr != upstream {
		t.Errorf("X-Correlation-ID = %q, want %q", hdr, upstream)
	}
}

func TestMiddlewarePreservesFlusher(t *testing.T) {
	f := newMiddlewareFixture(t)

	f.serve(t, httptest.NewRequest("GET", "/events", nil),
		func(w http.ResponseWriter, r *http.Request) {
			if _, ok := w.(http.Flusher); !ok {
				t.Error("wrapped writer lost http.Flusher")
			}
		})
}
