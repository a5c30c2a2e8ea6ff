/*
Package gate resolves caller identity and admin roles.

PURPOSE:
  Every engine operation starts here: a bearer token is verified into a
  principal id, and admin-gated operations additionally require the
  principal's role record to be worker or super.

ROLE CACHE:
  Role lookups hit a per-process in-memory cache with a fixed TTL
  (5 minutes). Expiry runs off an injected clock so it is testable.
  Entries are overwritten whole, never partially updated. The cache is
  not shared across processes; staleness up to the TTL is an accepted
  trade-off for latency. On a miss, or when the cached role is not an
  admin role, the authoritative role record is re-read once before
  failing.

TOKEN CONTRACT:
  HS256 JWT with the principal id in the subject claim and an optional
  "role" claim. The role claim is trusted for the admin fast path; the
  authoritative record under admins/{id} is the fallback.

SEE ALSO:
  - api/server.go: Extracts bearer tokens from requests
*/
package gate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/wager-engine/engine"
)

const (
	ColAdmins engine.Collection = "admins"

	// DefaultTTL bounds how stale a cached role may be.
	DefaultTTL = 5 * time.Minute
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleWorker Role = "worker"
	RoleSuper  Role = "super"
)

func (r Role) IsAdmin() bool { return r == RoleWorker || r == RoleSuper }

// RoleRecord is the authoritative admin role document. Read-only for this
// engine; role management lives elsewhere.
type RoleRecord struct {
	AdminID string `json:"admin_id"`
	Role    Role   `json:"role"`
}

// Claims is the verified token payload.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// =============================================================================
// GATE
// =============================================================================

type Gate struct {
	Store  engine.Store
	Clock  engine.Clock
	Secret []byte
	TTL    time.Duration // 0 means DefaultTTL

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	role    Role
	expires time.Time
}

func New(store engine.Store, clock engine.Clock, secret []byte) *Gate {
	return &Gate{
		Store:  store,
		Clock:  clock,
		Secret: secret,
		cache:  make(map[string]cacheEntry),
	}
}

// ResolvePrincipal verifies the token and returns the principal id.
func (g *Gate) ResolvePrincipal(_ context.Context, token string) (string, error) {
	claims, err := g.verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RequireAdmin verifies the token and requires a worker or super role.
func (g *Gate) RequireAdmin(ctx context.Context, token string) (string, error) {
	claims, err := g.verify(token)
	if err != nil {
		return "", err
	}
	id := claims.Subject

	// Fast path: the identity provider already asserted an admin role.
	if Role(claims.Role).IsAdmin() {
		return id, nil
	}

	role, err := g.roleFor(ctx, id)
	if err != nil {
		return "", err
	}
	if !role.IsAdmin() {
		return "", engine.Errorf(engine.PermissionDenied, "principal %s is not an admin", id)
	}
	return id, nil
}

func (g *Gate) verify(token string) (*Claims, error) {
	if token == "" {
		return nil, engine.Errorf(engine.Unauthenticated, "missing credentials")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return g.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.Clock.Now))
	if err != nil || !parsed.Valid {
		return nil, engine.Errorf(engine.Unauthenticated, "invalid credentials")
	}
	if claims.Subject == "" {
		return nil, engine.Errorf(engine.Unauthenticated, "token carries no principal")
	}
	return claims, nil
}

// roleFor consults the cache, then the authoritative record. A non-admin
// cached role triggers one authoritative re-read before the caller fails:
// a freshly promoted admin should not wait out someone else's TTL.
func (g *Gate) roleFor(ctx context.Context, id string) (Role, error) {
	now := g.Clock.Now()

	g.mu.Lock()
	entry, ok := g.cache[id]
	g.mu.Unlock()
	if ok && now.Before(entry.expires) && entry.role.IsAdmin() {
		return entry.role, nil
	}

	rec, err := g.Store.Get(ctx, engine.NewRef(ColAdmins, engine.DocID(id)))
	if err != nil {
		if err == engine.ErrDocMissing {
			g.put(id, "", now)
			return "", nil
		}
		return "", engine.Wrap(engine.Internal, err, "read role record %s", id)
	}

	var role RoleRecord
	if err := json.Unmarshal(rec.Data, &role); err != nil {
		return "", engine.Wrap(engine.Internal, err, "decode role record %s", id)
	}
	g.put(id, role.Role, now)
	return role.Role, nil
}

func (g *Gate) put(id string, role Role, now time.Time) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g.mu.Lock()
	g.cache[id] = cacheEntry{role: role, expires: now.Add(ttl)}
	g.mu.Unlock()
}

// =============================================================================
// TOKEN MINTING - Dev and test helper
// =============================================================================

// Mint issues an HS256 token for a principal. The engine never calls this
// on a request path; identity issuance belongs to the external provider.
func Mint(secret []byte, principalID string, role Role, now time.Time, validity time.Duration) (string, error) {
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
