package security

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	ModeJWT   = "jwt"
	ModeTrust = "trust"
)

// Authenticator extracts the caller's user id from an HTTP or websocket
// upgrade request.
//
// ModeJWT requires a valid access token (query access_token or Authorization:
// Bearer). ModeTrust takes user_id from the query or X-User-ID, for deployments
// behind a gateway that already authenticated the caller.
type Authenticator struct {
	mode     string
	verifier *JWTVerifier
}

func NewJWTAuthenticator(v *JWTVerifier) *Authenticator {
	return &Authenticator{mode: ModeJWT, verifier: v}
}

func NewTrustAuthenticator() *Authenticator {
	return &Authenticator{mode: ModeTrust}
}

func (a *Authenticator) Mode() string { return a.mode }

func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if a.mode == ModeTrust {
		id := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if id == "" {
			id = strings.TrimSpace(r.Header.Get("X-User-ID"))
		}
		if id == "" {
			return "", ErrInvalidSubject
		}
		return id, nil
	}

	claims, err := a.verifier.ParseAndValidate(TokenFromRequest(r))
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	return SubjectAsUserID(claims)
}

// TokenFromRequest prefers the Authorization header; browsers cannot set it on
// websocket upgrades, so the access_token query parameter is the fallback.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
