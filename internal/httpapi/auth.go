package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/souqline/checkout-api/internal/domain/user"
)

// APIKeyHeader is the header clients present their key in.
const APIKeyHeader = "api_key"

type ctxKey struct{}

// UserFrom returns the authenticated user stored in ctx by the auth
// middleware. The boolean is false on unauthenticated requests.
func UserFrom(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*user.User)
	return u, ok
}

func withUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// Authenticator resolves API keys into users. Keys are stored server-side
// only as HMAC-SHA256 digests, so a leaked table does not leak keys.
type Authenticator struct {
	users  user.Repository
	secret []byte
}

func NewAuthenticator(users user.Repository, secret []byte) *Authenticator {
	return &Authenticator{users: users, secret: secret}
}

// HashKey computes the stored digest for a raw API key.
func (a *Authenticator) HashKey(key string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate maps a raw API key to its user.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*user.User, error) {
	if key == "" {
		return nil, errors.New("missing api key")
	}
	u, err := a.users.FindByKeyHash(ctx, a.HashKey(key))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errors.New("unknown api key")
		}
		return nil, errors.Wrap(err, "find by key hash")
	}
	return u, nil
}

// Middleware rejects requests without a valid API key and stores the
// resolved user in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing api key")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

// RequireRole guards a route group to the listed roles. It must run after
// the Authenticator middleware.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid or missing api key")
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient role")
		})
	}
}
