// Package auth verifies client handshake tokens. The zone process never
// issues or stores credentials — that is an external auth service's job;
// this package only checks a bearer JWT's signature and claims.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the handshake token payload: playerId/username, plus the
// registered claims jwt.RegisteredClaims already validates (exp, nbf, iat).
type Claims struct {
	PlayerID uint64 `json:"playerId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates HS256-signed handshake tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier holding the shared verification secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates tokenString, returning the embedded claims.
// Rejects anything not signed with HMAC (no algorithm confusion), expired,
// or otherwise malformed.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: token failed validation")
	}
	return claims, nil
}

// IssueDevToken signs a short-lived token for local/dev handshakes where no
// external auth service is running. Not used when DAZ_JWT_SECRET is the
// production secret shared with a real issuer.
func (v *Verifier) IssueDevToken(playerID uint64, username string, ttl time.Duration) (string, error) {
	claims := &Claims{
		PlayerID: playerID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "darkages-zoned-dev",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
