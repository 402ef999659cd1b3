// Package observability provides broker-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Broker-specific semantic convention attributes.
var (
	// Principal/subject attributes
	AttrPrincipalID = attribute.Key("jitbroker.principal.id")
	AttrSubjectMail = attribute.Key("jitbroker.subject.email")

	// Policy-tree address attributes
	AttrEnvironment = attribute.Key("jitbroker.environment")
	AttrSystem      = attribute.Key("jitbroker.system")
	AttrGroup       = attribute.Key("jitbroker.group")

	// Decision attributes
	AttrOperation = attribute.Key("jitbroker.operation") // "join" | "approve"
	AttrDecision  = attribute.Key("jitbroker.decision")  // "allow" | "deny" | "proposed"
	AttrErrorKind = attribute.Key("jitbroker.error.kind")

	// Constraint evaluation attributes
	AttrConstraintName   = attribute.Key("jitbroker.constraint.name")
	AttrConstraintOutcome = attribute.Key("jitbroker.constraint.outcome")

	// Proposal token attributes
	AttrProposalJTI = attribute.Key("jitbroker.proposal.jti")
)

// SubjectOperation creates attributes identifying the acting subject.
func SubjectOperation(principalID, email string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPrincipalID.String(principalID),
		AttrSubjectMail.String(email),
	}
}

// GroupOperation creates attributes identifying the target policy-tree
// address (environment, system, group).
func GroupOperation(environment, system, group string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrSystem.String(system),
		AttrGroup.String(group),
	}
}

// DecisionOperation creates attributes for a Join/Approve decision outcome.
func DecisionOperation(operation, decision string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String(operation),
		AttrDecision.String(decision),
	}
}

// ConstraintOperation creates attributes for a single constraint evaluation.
func ConstraintOperation(name, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrConstraintName.String(name),
		AttrConstraintOutcome.String(outcome),
	}
}

// ProposalOperation creates attributes for a proposal-token sign/verify call.
func ProposalOperation(jti string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProposalJTI.String(jti),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
