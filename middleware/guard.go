package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpgate"
)

// Authenticator resolves a bearer credential. *otpgate.Engine satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*otpgate.Account, error)
}

type accountContextKey struct{}

// AccountFromContext returns the account stored by Guard.
func AccountFromContext(ctx context.Context) (*otpgate.Account, bool) {
	acct, ok := ctx.Value(accountContextKey{}).(*otpgate.Account)
	return acct, ok
}

// WithAccount stores acct in ctx the way Guard does.
func WithAccount(ctx context.Context, acct *otpgate.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, acct)
}

// Guard rejects requests without a valid credential with 401 and a
// WWW-Authenticate challenge. Backend failures while resolving the
// credential are 500, not 401.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				unauthorized(w)
				return
			}

			token, ok := credentialToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			acct, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if otpgate.KindOf(err) == otpgate.KindDependency {
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="otpgate"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func credentialToken(value string) (string, bool) {
	for _, scheme := range []string{"Bearer ", "Token "} {
		if len(value) > len(scheme) && strings.EqualFold(value[:len(scheme)], scheme) {
			token := strings.TrimSpace(value[len(scheme):])
			return token, token != ""
		}
	}
	return "", false
}
