package emit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const attrPrefix = "emailgraph."

// OTelEmitter turns engine events into OpenTelemetry spans.
//
// Span hierarchy per run:
//
//	run (run_start .. run_complete|run_failed)
//	├── node categorize_email (node_start .. node_end)
//	├── node research_info_search
//	└── ...
//
// Routing decisions become span events on the run span. Events that do not
// match an open span (for example a node_end without node_start) are recorded
// as standalone spans so nothing is lost.
type OTelEmitter struct {
	tracer trace.Tracer

	mu   sync.Mutex
	runs map[string]*runSpans
}

type runSpans struct {
	ctx  context.Context
	run  trace.Span
	node trace.Span
}

// NewOTelEmitter creates an emitter using tracer. A nil tracer uses the global
// provider.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	if tracer == nil {
		tracer = otel.Tracer("github.com/abdulmalikadeyemo/email-assistant/graph")
	}
	return &OTelEmitter{
		tracer: tracer,
		runs:   make(map[string]*runSpans),
	}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rs := o.runs[event.RunID]
	switch event.Msg {
	case MsgRunStart:
		ctx, span := o.tracer.Start(context.Background(), "run", trace.WithTimestamp(eventTime(event)))
		addStandardAttributes(span, event)
		addMetadataAttributes(span, event.Meta)
		o.runs[event.RunID] = &runSpans{ctx: ctx, run: span}

	case MsgNodeStart:
		if rs == nil {
			break
		}
		_, span := o.tracer.Start(rs.ctx, "node "+event.NodeID, trace.WithTimestamp(eventTime(event)))
		addStandardAttributes(span, event)
		rs.node = span

	case MsgNodeEnd:
		if rs == nil || rs.node == nil {
			o.standalone(event)
			break
		}
		addMetadataAttributes(rs.node, event.Meta)
		markError(rs.node, event.Meta)
		rs.node.End(trace.WithTimestamp(eventTime(event)))
		rs.node = nil

	case MsgRoutingDecision:
		if rs == nil {
			o.standalone(event)
			break
		}
		rs.run.AddEvent(event.Msg, trace.WithAttributes(metaAttributes(event.Meta)...), trace.WithTimestamp(eventTime(event)))

	case MsgRunComplete, MsgRunFailed:
		if rs == nil {
			o.standalone(event)
			break
		}
		if rs.node != nil {
			markError(rs.node, event.Meta)
			rs.node.End(trace.WithTimestamp(eventTime(event)))
		}
		addMetadataAttributes(rs.run, event.Meta)
		markError(rs.run, event.Meta)
		rs.run.End(trace.WithTimestamp(eventTime(event)))
		delete(o.runs, event.RunID)

	default:
		o.standalone(event)
	}
}

// standalone records event as its own short span.
func (o *OTelEmitter) standalone(event Event) {
	ctx := context.Background()
	if rs := o.runs[event.RunID]; rs != nil {
		ctx = rs.ctx
	}
	_, span := o.tracer.Start(ctx, event.Msg, trace.WithTimestamp(eventTime(event)))
	addStandardAttributes(span, event)
	addMetadataAttributes(span, event.Meta)
	markError(span, event.Meta)
	span.End()
}

// Open reports the number of runs with an unfinished run span.
func (o *OTelEmitter) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs)
}

// Flush ends any spans left open and forces the global tracer provider, if it
// supports it, to export buffered spans.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	o.mu.Lock()
	for id, rs := range o.runs {
		if rs.node != nil {
			rs.node.End()
		}
		rs.run.SetStatus(codes.Error, "run span still open at flush")
		rs.run.End()
		delete(o.runs, id)
	}
	o.mu.Unlock()

	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func eventTime(event Event) time.Time {
	if event.Time.IsZero() {
		return time.Now()
	}
	return event.Time
}

func markError(span trace.Span, meta map[string]interface{}) {
	msg, ok := meta["error"].(string)
	if !ok || msg == "" {
		return
	}
	span.SetStatus(codes.Error, msg)
	span.RecordError(errors.New(msg))
}

func addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String(attrPrefix+"run_id", event.RunID),
		attribute.Int(attrPrefix+"step", event.Step),
	)
	if event.NodeID != "" {
		span.SetAttributes(attribute.String(attrPrefix+"node_id", event.NodeID))
	}
}

func addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	if len(meta) == 0 {
		return
	}
	span.SetAttributes(metaAttributes(meta)...)
}

func metaAttributes(meta map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(meta))
	for key, value := range meta {
		attrKey := attrPrefix + key
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(attrKey, v))
		case int:
			attrs = append(attrs, attribute.Int(attrKey, v))
		case int64:
			attrs = append(attrs, attribute.Int64(attrKey, v))
		case float64:
			attrs = append(attrs, attribute.Float64(attrKey, v))
		case bool:
			attrs = append(attrs, attribute.Bool(attrKey, v))
		case time.Duration:
			attrs = append(attrs, attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			attrs = append(attrs, attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
	return attrs
}
