// Package identity carries the caller's organization and identity fragment
// on the request context. Identities arrive either as certificate-like
// subject strings or as JWT claims; both normalize to Caller.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Caller is the authenticated invoker of a contract operation
type Caller struct {
	// Org is the caller's organization identifier (MSP id)
	Org string
	// ID is the distinguishing identity fragment (certificate CN or JWT
	// subject)
	ID string
}

func (c Caller) Valid() bool {
	return c.Org != "" && c.ID != ""
}

type contextKey struct{}

// WithCaller attaches a caller to the context
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, caller)
}

// FromContext extracts the caller set by WithCaller
func FromContext(ctx context.Context) (Caller, error) {
	caller, ok := ctx.Value(contextKey{}).(Caller)
	if !ok || !caller.Valid() {
		return Caller{}, errors.New("no caller identity in context")
	}
	return caller, nil
}

// ParseSubject extracts the identity fragment from a certificate-like
// subject string of the form
// "x509::/C=US/ST=CA/O=org1/CN=admin::/C=US/O=ca.org1/CN=ca". The CN of
// the first distinguished name is the identity fragment; O is used as the
// organization when org is not supplied by the invocation context.
func ParseSubject(subject string) (Caller, error) {
	body := strings.TrimPrefix(subject, "x509::")
	dn := body
	if i := strings.Index(body, "::"); i >= 0 {
		dn = body[:i]
	}

	var caller Caller
	for _, part := range strings.Split(dn, "/") {
		switch {
		case strings.HasPrefix(part, "CN="):
			caller.ID = strings.TrimPrefix(part, "CN=")
		case strings.HasPrefix(part, "O="):
			caller.Org = strings.TrimPrefix(part, "O=")
		}
	}
	if caller.ID == "" {
		return Caller{}, fmt.Errorf("subject %q has no CN component", subject)
	}
	return caller, nil
}

// FromClaims maps JWT registered claims to a caller: issuer is the
// organization, subject the identity fragment.
func FromClaims(claims *jwt.RegisteredClaims) (Caller, error) {
	if claims == nil {
		return Caller{}, errors.New("nil claims")
	}
	caller := Caller{Org: claims.Issuer, ID: claims.Subject}
	if !caller.Valid() {
		return Caller{}, errors.New("claims missing issuer or subject")
	}
	return caller, nil
}
