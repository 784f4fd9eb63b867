package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyCredential   = errors.New("empty credential")
	ErrCredentialExpired = errors.New("credential expired")
)

// Identity is what can be read from a game credential without the server's
// key. Opaque credentials carry no identity at all.
type Identity struct {
	UserID    string
	Name      string
	ExpiresAt time.Time
	Opaque    bool
}

// CredentialValue strips a "name=" cookie prefix and any further cookies.
func CredentialValue(credential string) string {
	v := strings.TrimSpace(credential)
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '='); i > 0 && i < len(v)-1 {
		v = v[i+1:]
	}
	return strings.TrimSpace(v)
}

// Inspect reads a credential without verifying it. JWT-shaped values are
// decoded for uid/name/exp and rejected once expired.
func Inspect(credential string) (Identity, error) {
	v := CredentialValue(credential)
	if v == "" {
		return Identity{}, ErrEmptyCredential
	}
	if strings.Count(v, ".") != 2 {
		return Identity{Opaque: true}, nil
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(v, &claims); err != nil {
		// three dot-separated parts that are not a JWT
		return Identity{Opaque: true}, nil
	}

	id := Identity{UserID: claims.UserID, Name: claims.DisplayName}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
		if time.Now().After(id.ExpiresAt) {
			return id, fmt.Errorf("%w at %s", ErrCredentialExpired, id.ExpiresAt.Format(time.RFC3339))
		}
	}
	return id, nil
}

// VerifyCredential checks a JWT-shaped credential against the game
// server's signing secret.
func VerifyCredential(secret []byte, credential string) (*Claims, error) {
	v := CredentialValue(credential)
	if v == "" {
		return nil, ErrEmptyCredential
	}
	return Verify(secret, v)
}
