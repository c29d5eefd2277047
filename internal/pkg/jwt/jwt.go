package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped on every token and required when parsing.
const Issuer = "ragdesk"

var ErrMissingIdentity = errors.New("token missing user or tenant")

// Claims binds a caller to exactly one tenant. The user id doubles as the
// registered subject.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwtlib.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

func GenerateToken(userID, tenantID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		TenantID: tenantID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}

func ParseToken(raw string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims,
		func(*jwtlib.Token) (interface{}, error) { return secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(Issuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, ErrMissingIdentity
	}
	return claims, nil
}
