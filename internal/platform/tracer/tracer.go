// Package tracer provides a small tracing abstraction over OpenTelemetry.
//
// Credential generation, every verification barrier and every challenge
// operation opens a span through this interface, so packages never import
// OpenTelemetry APIs directly.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes.
	//
	// Example:
	//   ctx, span := tr.Start(ctx, tracer.SpanBarrier,
	//       tracer.String(tracer.AttrBarrier, "integrity"),
	//   )
	//   defer span.End(nil)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an int attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanGenerate          = "strand.generate"
	SpanVerify            = "strand.verify"
	SpanBarrier           = "strand.verify.barrier"
	SpanChallengeStart    = "strand.challenge.start"
	SpanChallengeComplete = "strand.challenge.complete"
	SpanRevoke            = "strand.revocation.revoke"
	SpanFilterRebuild     = "strand.revocation.rebuild"
)

// Attribute keys.
const (
	AttrCredentialID = "credential_id"
	AttrChallengeID  = "challenge_id"
	AttrSegmentCount = "segment_count"
	AttrBarrier      = "barrier"
	AttrPassed       = "passed"
	AttrReason       = "reason"
	AttrFilterHit    = "filter.hit"
)
