package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestOTelEmitter_RunHierarchy(t *testing.T) {
	emitter, exporter := newTestTracer(t)
	start := time.Now()

	emitter.Emit(Event{RunID: "run-001", Msg: MsgRunStart, Time: start})
	emitter.Emit(Event{RunID: "run-001", Step: 1, NodeID: "categorize_email", Msg: MsgNodeStart, Time: start})
	emitter.Emit(Event{RunID: "run-001", Step: 1, NodeID: "categorize_email", Msg: MsgNodeEnd,
		Time: start.Add(5 * time.Millisecond), Meta: map[string]interface{}{"latency_ms": int64(5)}})
	emitter.Emit(Event{RunID: "run-001", Step: 1, NodeID: "categorize_email", Msg: MsgRoutingDecision,
		Meta: map[string]interface{}{"label": "draft_email", "next": "draft_email_writer"}})
	emitter.Emit(Event{RunID: "run-001", Step: 1, Msg: MsgRunComplete, Time: start.Add(10 * time.Millisecond)})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans (node, run), got %d", len(spans))
	}

	node, run := spans[0], spans[1]
	if node.Name != "node categorize_email" {
		t.Errorf("node span name = %q", node.Name)
	}
	if run.Name != "run" {
		t.Errorf("run span name = %q", run.Name)
	}
	if node.Parent.SpanID() != run.SpanContext.SpanID() {
		t.Error("node span is not a child of the run span")
	}

	attrs := attributeMap(node.Attributes)
	if got := attrs["emailgraph.node_id"]; got != "categorize_email" {
		t.Errorf("node_id = %v", got)
	}
	if got := attrs["emailgraph.latency_ms"]; got != int64(5) {
		t.Errorf("latency_ms = %v", got)
	}

	if len(run.Events) != 1 || run.Events[0].Name != MsgRoutingDecision {
		t.Fatalf("expected routing decision span event, got %+v", run.Events)
	}
	if emitter.Open() != 0 {
		t.Errorf("expected no open runs, got %d", emitter.Open())
	}
}

func TestOTelEmitter_Failure(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{RunID: "run-002", Msg: MsgRunStart})
	emitter.Emit(Event{RunID: "run-002", Step: 1, NodeID: "analyze_draft_email", Msg: MsgNodeStart})
	emitter.Emit(Event{RunID: "run-002", Step: 1, NodeID: "analyze_draft_email", Msg: MsgRunFailed,
		Meta: map[string]interface{}{"error": "model unavailable", "status": "failed"}})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for _, span := range spans {
		if span.Status.Code != codes.Error {
			t.Errorf("span %q status = %v, want Error", span.Name, span.Status.Code)
		}
	}
}

func TestOTelEmitter_Standalone(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{RunID: "orphan", Step: 3, NodeID: "x", Msg: "custom", Meta: map[string]interface{}{"ok": true}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributeMap(spans[0].Attributes)
	if attrs["emailgraph.ok"] != true {
		t.Errorf("expected meta attribute, got %v", attrs)
	}
}

func TestOTelEmitter_Flush(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{RunID: "run-003", Msg: MsgRunStart})
	emitter.Emit(Event{RunID: "run-003", Step: 1, NodeID: "a", Msg: MsgNodeStart})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if emitter.Open() != 0 {
		t.Error("expected Flush to close open runs")
	}
	if got := len(exporter.GetSpans()); got != 2 {
		t.Errorf("expected 2 ended spans, got %d", got)
	}
}
