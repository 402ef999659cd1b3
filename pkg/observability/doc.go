// Package observability provides OpenTelemetry tracing and metrics for
// the broker. It implements production-ready observability following
// cloud-native best practices.
//
// # Tracing
//
// Initialize a Provider at application startup:
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "jit-broker",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//	})
//	defer p.Shutdown(ctx)
//
// Wrap a port call so every suspension point (directory lookup, signer,
// provisioner) becomes a span and a RED metric:
//
//	ctx, finish := p.TrackOperation(ctx, "subject.resolve", observability.SubjectOperation(user.String(), email)...)
//	groups, err := directory.DirectGroups(ctx, user)
//	finish(err)
//
// # Metrics
//
// New exposes request/error/duration RED metrics and an active-operation
// gauge via TrackOperation; there is no separate metrics registration step.
package observability
