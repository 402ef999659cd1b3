package principal

import "time"

// Validity is the half-open interval [NotBefore, NotAfter) during which a
// principal contributes to a subject. A zero NotAfter means open-ended
// (directory groups, the user principal, well-known classes).
type Validity struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// OpenEnded reports whether the validity has no expiry.
func (v Validity) OpenEnded() bool { return v.NotAfter.IsZero() }

// ActiveAt reports whether the validity covers instant t.
func (v Validity) ActiveAt(t time.Time) bool {
	if !v.NotBefore.IsZero() && t.Before(v.NotBefore) {
		return false
	}
	return v.OpenEnded() || t.Before(v.NotAfter)
}

// Principal pairs an ID with the validity window it carries in a given
// Subject.
type Principal struct {
	ID       ID
	Validity Validity
}

// ActiveAt reports whether this principal contributes to ACL evaluation
// at instant t.
func (p Principal) ActiveAt(t time.Time) bool { return p.Validity.ActiveAt(t) }
