package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Tracker is the narrow interface domain packages depend on to
// instrument port calls (directory lookups, signer, provisioner) with
// spans and RED metrics, without importing the full Provider.
// *Provider satisfies it structurally.
type Tracker interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}
