package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mbenek/sitegate/internal/models"
)

// LedgerReader fetches the ledger entry backing a token. Verification
// re-fetches on every call so revocation takes effect immediately.
type LedgerReader interface {
	GetByID(ctx context.Context, id string) (*models.LoginAttempt, error)
}

// VerifyCache optionally memoizes non-invoked ledger entries between
// verifications. Its TTL bounds effective revocation latency.
type VerifyCache interface {
	Get(ctx context.Context, id string) (*models.LoginAttempt, bool)
	Set(ctx context.Context, attempt *models.LoginAttempt)
	Invalidate(ctx context.Context, id string)
}

// Codec signs and verifies session and client-app tokens. Each token class
// has its own secret; a token minted under one class never verifies under
// another.
type Codec struct {
	secrets map[models.SecretClass][]byte
	ledger  LedgerReader
	cache   VerifyCache
	logger  *slog.Logger
}

// NewCodec creates a Codec with the three class secrets injected explicitly
// so it is unit-testable with fixture secrets.
func NewCodec(adminSecret, siteSecret, clientAppSecret string, ledger LedgerReader, logger *slog.Logger) *Codec {
	return &Codec{
		secrets: map[models.SecretClass][]byte{
			models.SecretAdmin:     []byte(adminSecret),
			models.SecretSite:      []byte(siteSecret),
			models.SecretClientApp: []byte(clientAppSecret),
		},
		ledger: ledger,
		logger: logger,
	}
}

// SetCache enables the short-TTL verification cache.
func (c *Codec) SetCache(cache VerifyCache) {
	c.cache = cache
}

// Sign produces a compact signed token carrying the given claims under the
// selected secret class.
func (c *Codec) Sign(claims *models.TokenClaims, class models.SecretClass, ttl time.Duration) (string, error) {
	if claims.LoginAttemptID == "" {
		return "", fmt.Errorf("login attempt id is required")
	}

	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secrets[class])
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", class, err)
	}
	return signed, nil
}

// Verify checks a token against the ordered secret candidates for the given
// scope and returns the backing ledger entry. Malformed, expired,
// wrong-class, and revoked tokens all collapse to ErrUnauthorized; the
// distinction is kept for logging only.
func (c *Codec) Verify(ctx context.Context, tokenString string, site models.SiteCode) (*models.LoginAttempt, *models.TokenClaims, error) {
	var lastErr error

	for _, class := range models.VerifyCandidates(site) {
		claims, err := c.parse(tokenString, class)
		if err != nil {
			lastErr = err
			continue
		}

		// The administrator claim is honored only under the admin secret,
		// so a site-signed token cannot forge admin access.
		if claims.IsAdministrator && class == models.SecretSite {
			lastErr = fmt.Errorf("administrator claim under site secret")
			continue
		}

		if claims.SiteCode != site {
			c.logger.Debug("token scope mismatch",
				slog.String("token_site", string(claims.SiteCode)),
				slog.String("requested_site", string(site)))
			return nil, nil, models.ErrUnauthorized
		}

		attempt, err := c.loadAttempt(ctx, claims.LoginAttemptID)
		if err != nil {
			return nil, nil, err
		}
		return attempt, claims, nil
	}

	if lastErr != nil {
		c.logger.Debug("token verification failed", slog.String("site_code", string(site)), slog.Any("error", lastErr))
	}
	return nil, nil, models.ErrUnauthorized
}

// Invalidate drops a ledger entry from the verification cache after logout.
func (c *Codec) Invalidate(ctx context.Context, attemptID string) {
	if c.cache != nil {
		c.cache.Invalidate(ctx, attemptID)
	}
}

func (c *Codec) parse(tokenString string, class models.SecretClass) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secrets[class], nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token under %s secret: %w", class, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token under %s secret", class)
	}
	if claims.LoginAttemptID == "" {
		return nil, fmt.Errorf("token missing login attempt reference")
	}
	return claims, nil
}

func (c *Codec) loadAttempt(ctx context.Context, id string) (*models.LoginAttempt, error) {
	if c.cache != nil {
		if attempt, ok := c.cache.Get(ctx, id); ok {
			if attempt.Revoked() {
				return nil, models.ErrUnauthorized
			}
			return attempt, nil
		}
	}

	attempt, err := c.ledger.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}
	if attempt.Revoked() {
		return nil, models.ErrUnauthorized
	}

	if c.cache != nil {
		c.cache.Set(ctx, attempt)
	}
	return attempt, nil
}
