// Package subject builds the per-request Subject — a user plus its full
// principal set — from an authenticated user identity and a directory
// lookup, caching results with the Pessimistic and AutoReset lazyvalue
// strategies (spec
// §4.6, §5). Grounded on the teacher's pattern of taking a small,
// caller-owned port interface (identity.KeySet) rather than an owned
// client, and on pkg/identity/types.go's principal composition.
package subject

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/lazyvalue"
	"github.com/jitaccess/broker/pkg/observability"
	"github.com/jitaccess/broker/pkg/principal"
	"go.opentelemetry.io/otel/attribute"
)

// track starts an instrumented span via tracker, or is a no-op if
// tracker is nil.
func track(ctx context.Context, tracker observability.Tracker, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if tracker == nil {
		return ctx, func(error) {}
	}
	return tracker.TrackOperation(ctx, name, attrs...)
}

// UserID identifies an authenticated end-user by email-shaped address.
type UserID struct {
	Local  string
	Domain string
}

func (u UserID) String() string { return u.Local + "@" + u.Domain }

// DirectoryGroup is one group membership as reported by the directory
// port: its canonical "group@domain" address, and (for JIT-group
// memberships only) the expiry attribute recording when the membership
// lapses.
type DirectoryGroup struct {
	Address string
	Expiry  time.Time // zero if the directory reports no expiry
}

// Directory resolves a user's direct group memberships. Implementations
// call out to an external identity provider; the resolver treats it as
// a per-request-cacheable, potentially slow dependency.
type Directory interface {
	DirectGroups(ctx context.Context, user UserID) ([]DirectoryGroup, error)
}

// jitGroupPrefix is the directory-group local-part prefix that marks a
// membership as materializing a JIT group rather than an ordinary
// directory group, per spec §4.6: "jit.<env>.<system>.<name>@<domain>".
const jitGroupPrefix = "jit."

// Subject is the immutable per-request principal set: the user, plus
// every group/class the user currently belongs to, each with validity.
type Subject struct {
	user       principal.Principal
	principals []principal.Principal
}

// User returns the resolved user principal (always open-ended validity).
func (s Subject) User() principal.Principal { return s.user }

// Principals implements acl.Subject.
func (s Subject) Principals() []principal.Principal {
	out := make([]principal.Principal, len(s.principals))
	copy(out, s.principals)
	return out
}

var _ acl.Subject = Subject{}

// ResolveOption configures a single Resolve call.
type ResolveOption func(*resolveConfig)

type resolveConfig struct {
	tracker observability.Tracker
}

// WithTracker instruments Resolve's directory lookup with a span and RED
// metrics via tracker.
func WithTracker(tracker observability.Tracker) ResolveOption {
	return func(c *resolveConfig) { c.tracker = tracker }
}

// Resolve builds a Subject for user by fetching its direct groups from
// dir and classifying each per spec §4.6 steps 1-4.
func Resolve(ctx context.Context, dir Directory, user UserID, opts ...ResolveOption) (Subject, error) {
	var cfg resolveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	userPrincipal := principal.Principal{
		ID:       principal.User(user.Local, user.Domain),
		Validity: principal.Validity{},
	}

	dirCtx, finish := track(ctx, cfg.tracker, "subject.resolve", observability.SubjectOperation(userPrincipal.ID.String(), user.String())...)
	groups, err := dir.DirectGroups(dirCtx, user)
	finish(err)
	if err != nil {
		return Subject{}, fmt.Errorf("subject: fetching direct groups for %s: %w", user, err)
	}

	principals := []principal.Principal{
		userPrincipal,
		{ID: principal.Class(principal.ClassAllAuthenticated), Validity: principal.Validity{}},
	}
	for _, g := range groups {
		p, ok := classifyGroup(g)
		if !ok {
			continue
		}
		principals = append(principals, p)
	}

	return Subject{user: userPrincipal, principals: principals}, nil
}

func classifyGroup(g DirectoryGroup) (principal.Principal, bool) {
	local, domain, ok := strings.Cut(g.Address, "@")
	if !ok || local == "" || domain == "" {
		return principal.Principal{}, false
	}

	if !strings.HasPrefix(local, jitGroupPrefix) {
		return principal.Principal{
			ID:       principal.Group(local, domain),
			Validity: principal.Validity{},
		}, true
	}

	parts := strings.Split(strings.TrimPrefix(local, jitGroupPrefix), ".")
	if len(parts) != 3 {
		return principal.Principal{}, false
	}
	id, ok := principal.Parse(fmt.Sprintf("jit-group:%s.%s.%s", parts[0], parts[1], parts[2]))
	if !ok {
		return principal.Principal{}, false
	}
	if g.Expiry.IsZero() {
		return principal.Principal{}, false
	}
	return principal.Principal{ID: id, Validity: principal.Validity{NotAfter: g.Expiry}}, true
}

// Cache resolves and caches Subjects per user for a configurable TTL,
// avoiding repeated directory calls within a request burst (spec §5).
// Each cached entry is itself a lazyvalue.AutoReset-wrapped
// lazyvalue.Pessimistic, so a cache miss triggers at most one in-flight
// directory lookup per user and the entry is transparently recomputed
// once TTL elapses.
type Cache struct {
	dir     Directory
	ttl     time.Duration
	tracker observability.Tracker

	mu      sync.Mutex
	entries map[string]*lazyvalue.AutoReset[Subject]
}

// NewCache returns a Subject cache backed by dir with the given TTL.
func NewCache(dir Directory, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl, entries: make(map[string]*lazyvalue.AutoReset[Subject])}
}

// WithTracker attaches an observability.Tracker so every directory
// lookup triggered by a cache miss is instrumented with a span and RED
// metrics.
func (c *Cache) WithTracker(tracker observability.Tracker) *Cache {
	c.tracker = tracker
	return c
}

// Get returns the cached Subject for user, resolving it on first access
// or after the entry's TTL has elapsed.
func (c *Cache) Get(ctx context.Context, user UserID) (Subject, error) {
	key := user.String()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		pess := lazyvalue.NewPessimistic(func() (Subject, error) {
			return Resolve(ctx, c.dir, user, WithTracker(c.tracker))
		})
		entry = lazyvalue.NewAutoReset[Subject](pess, c.ttl)
		c.entries[key] = entry
	}
	c.mu.Unlock()

	return entry.Get()
}
