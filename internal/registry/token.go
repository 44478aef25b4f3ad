package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when a JWT credential is already expired
var ErrTokenExpired = errors.New("identity token expired")

// checkTokenExpiry rejects credentials in JWT form whose exp claim has passed.
// Opaque tokens are not inspected; the signature is never verified here, the
// registry does that.
func checkTokenExpiry(token string, now time.Time) error {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	if !exp.After(now) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.UTC().Format(time.RFC3339))
	}
	return nil
}
