// Package provision declares the provisioning port (spec §4.10): the
// single side-effecting call that materializes a JIT group membership
// in the external directory. It is deliberately a one-method interface
// with no implementation here — a port the core depends on, not a
// client the core owns, the same boundary shape as the teacher's
// identity.KeySet and directory.Directory ports.
package provision

import (
	"context"
	"time"

	"github.com/jitaccess/broker/pkg/principal"
)

// MembershipRef identifies the directory-side membership record created
// by a successful Provision call.
type MembershipRef struct {
	ID string
}

// Port provisions a time-bound group membership. expiry is absolute
// UTC; implementations may round it up to the nearest minute but must
// never round down (spec §4.10). Errors are surfaced verbatim to the
// caller — the join/approve state machine stays in Proposed/Input-bound
// on failure so the caller may retry.
type Port interface {
	Provision(ctx context.Context, user principal.ID, group principal.ID, expiry time.Time, justification string) (MembershipRef, error)
}
