package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenAuthenticator verifies HS256 session tokens issued by the ticket app
// and resolves the subject through a Directory.
type TokenAuthenticator struct {
	secret    []byte
	cookie    string
	directory Directory
}

// NewTokenAuthenticator creates an authenticator. cookie names the cookie
// checked after the Authorization header and the token query parameter.
func NewTokenAuthenticator(secret, cookie string, dir Directory) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret), cookie: cookie, directory: dir}
}

// Authenticate returns the identity behind the request's session token.
// ok is false for anonymous requests (no token, invalid token, unknown user).
func (a *TokenAuthenticator) Authenticate(r *http.Request) (Identity, bool) {
	raw := tokenFromRequest(r, a.cookie)
	if raw == "" {
		return Identity{}, false
	}
	id, err := a.Verify(raw)
	if err != nil {
		return Identity{}, false
	}
	ident, err := a.directory.Lookup(r.Context(), id)
	if err != nil {
		return Identity{}, false
	}
	return ident, true
}

// Verify checks a token's signature and expiry and returns its user id.
func (a *TokenAuthenticator) Verify(raw string) (uint, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("identity: verify token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("identity: verify token: missing subject")
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("identity: verify token: bad subject %q", sub)
	}
	return uint(id), nil
}

// Issue signs a token for id. The ticket app issues tokens in production;
// this is used by tests and the dev CLI.
func Issue(secret string, id uint, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = strconv.FormatUint(uint64(id), 10)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func tokenFromRequest(r *http.Request, cookie string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if cookie != "" {
		if c, err := r.Cookie(cookie); err == nil {
			return c.Value
		}
	}
	return ""
}
