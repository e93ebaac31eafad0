package daemon

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LocalUser owns every session when the API runs without authentication or
// with the shared static token.
const LocalUser = "local"

var errUnauthorized = errors.New("unauthorized")

type userKey struct{}

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// userFromContext returns the authenticated user id set by authMiddleware.
func userFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKey{}).(string); ok && v != "" {
		return v
	}
	return LocalUser
}

// authenticator validates bearer credentials. A request passes when its
// bearer value equals the static token, or when it is an HS256 JWT signed
// with the configured secret whose subject names the user.
type authenticator struct {
	token  string
	secret []byte
	issuer string
	parser *jwt.Parser
}

func newAuthenticator(token, secret, issuer string) *authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &authenticator{
		token:  strings.TrimSpace(token),
		secret: []byte(strings.TrimSpace(secret)),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

func (a *authenticator) enabled() bool {
	return a.token != "" || len(a.secret) > 0
}

// authenticate returns the user id for the request's credentials.
func (a *authenticator) authenticate(r *http.Request) (string, error) {
	if !a.enabled() {
		return LocalUser, nil
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errUnauthorized
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if bearer == "" {
		return "", errUnauthorized
	}
	if a.token != "" && subtle.ConstantTimeCompare([]byte(bearer), []byte(a.token)) == 1 {
		return LocalUser, nil
	}
	if len(a.secret) == 0 {
		return "", errUnauthorized
	}
	claims := &jwt.RegisteredClaims{}
	_, err := a.parser.ParseWithClaims(bearer, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", errUnauthorized
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errUnauthorized
	}
	return subject, nil
}

// middleware rejects unauthenticated requests with 401 and stores the user id
// on the request context.
func (a *authenticator) middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="briefsmith"`)
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "unauthorized"))
			return
		}
		next(w, r.WithContext(withUser(r.Context(), userID)))
	}
}

// IssueToken signs an HS256 token for userID. The CLI uses it to mint
// short-lived credentials from a shared secret.
func IssueToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret is empty")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is empty")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}
