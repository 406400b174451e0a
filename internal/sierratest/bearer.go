package sierratest

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/sierra/pkg/idx"
)

// Bearer tokens issued by the fake server are HS256 JWTs. Sierra's real
// tokens are opaque; a JWT lets the server check a bearer without keeping
// a table of issued tokens.

const bearerIssuer = "sierratest"

var (
	errBearerMalformed = errors.New("sierratest: malformed bearer token")
	errBearerUnknown   = errors.New("sierratest: bearer token was not issued by this server")
)

type bearerSigner struct {
	key []byte
}

func newBearerSigner() *bearerSigner {
	// The ULID doubles as 16 bytes of key material; uniqueness is enough
	// for an in-process test server.
	id := idx.New()
	return &bearerSigner{key: []byte(id.String())}
}

// issue signs a token for clientID that expires after ttl. The jti is a
// fresh ULID so two tokens issued in the same second still differ.
func (b *bearerSigner) issue(clientID string, ttl time.Duration, now time.Time) (string, string, error) {
	jti := idx.NewAt(now).String()
	claims := jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    bearerIssuer,
		Subject:   clientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
	if err != nil {
		return "", "", fmt.Errorf("sierratest: sign bearer: %w", err)
	}
	return signed, jti, nil
}

// verify parses raw and returns its claims. Expiry is checked with a minute
// of leeway: clients are expected to refresh early, not the server to be
// strict about it.
func (b *bearerSigner) verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return b.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(bearerIssuer),
		jwt.WithLeeway(time.Minute),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, errBearerMalformed
	default:
		return nil, fmt.Errorf("%w: %w", errBearerUnknown, err)
	}
}
