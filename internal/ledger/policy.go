package ledger

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Identity is the authenticated caller as asserted by the auth proxy
type Identity struct {
	UserID string
	Email  string
}

// RoleChecker decides what a caller may do
type RoleChecker interface {
	Allows(ctx context.Context, who Identity, perm Permission) bool
	CanApprove(ctx context.Context, who Identity, t LogType) bool
}

// Permission is a "resource:action" grant
type Permission string

// Permissions
const (
	PermissionApprove Permission = "ledger:approve"
	PermissionCreate  Permission = "ledger:create"
	PermissionComment Permission = "ledger:comment"
	PermissionAll     Permission = "ledger:*"

	// PermissionManageOrders covers the admin order endpoints
	PermissionManageOrders Permission = "orders:manage"
)

func (p Permission) split() (string, string) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", ""
	}
	return res, act
}

// Matches reports whether p grants requested, honouring "resource:*"
func (p Permission) Matches(requested Permission) bool {
	if p == requested {
		return true
	}
	res, act := p.split()
	reqRes, _ := requested.split()
	return res != "" && res == reqRes && act == "*"
}

// Roles
const (
	RolePartner  = "partner"
	RoleApprover = "approver"
)

// DefaultRoles grants approval and order management to the approver role only
var DefaultRoles = map[string][]Permission{
	RolePartner:  {PermissionCreate, PermissionComment},
	RoleApprover: {PermissionAll, PermissionManageOrders},
}

// RoleResolver looks up the role of a caller
type RoleResolver interface {
	ResolveRole(ctx context.Context, who Identity) (string, error)
}

// CachedRoleResolver keeps resolved roles for ttl
type CachedRoleResolver struct {
	inner RoleResolver
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedRole
}

type cachedRole struct {
	role      string
	expiresAt time.Time
}

// NewCachedRoleResolver wraps inner with a TTL cache keyed by user id and email
func NewCachedRoleResolver(inner RoleResolver, ttl time.Duration) *CachedRoleResolver {
	return &CachedRoleResolver{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedRole),
	}
}

// ResolveRole implements RoleResolver
func (r *CachedRoleResolver) ResolveRole(ctx context.Context, who Identity) (string, error) {
	key := who.UserID + "|" + who.Email
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()

	if ok && r.now().Before(entry.expiresAt) {
		return entry.role, nil
	}

	role, err := r.inner.ResolveRole(ctx, who)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = cachedRole{role: role, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return role, nil
}

// RolePolicy is the default RoleChecker backed by a role table
type RolePolicy struct {
	resolver RoleResolver
	roles    map[string][]Permission
}

// NewRolePolicy uses DefaultRoles
func NewRolePolicy(resolver RoleResolver) *RolePolicy {
	return &RolePolicy{resolver: resolver, roles: DefaultRoles}
}

// Allows reports whether who holds perm. Resolution errors deny.
func (p *RolePolicy) Allows(ctx context.Context, who Identity, perm Permission) bool {
	if who.UserID == "" {
		return false
	}
	role, err := p.resolver.ResolveRole(ctx, who)
	if err != nil {
		return false
	}
	for _, granted := range p.roles[role] {
		if granted.Matches(perm) {
			return true
		}
	}
	return false
}

// CanApprove implements RoleChecker. The grant is the same for every log type.
func (p *RolePolicy) CanApprove(ctx context.Context, who Identity, _ LogType) bool {
	return p.Allows(ctx, who, PermissionApprove)
}
