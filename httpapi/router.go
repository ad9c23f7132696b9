package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 16

// Service is the engine surface the handlers call. *otpgate.Engine
// satisfies it.
type Service interface {
	Signup(ctx context.Context, firstName, lastName, email, password string) (*otpgate.SignupResult, error)
	Resend(ctx context.Context, email string) (*otpgate.ResendResult, error)
	Verify(ctx context.Context, email, code string) (*otpgate.VerifyResult, error)
	Login(ctx context.Context, email, password string) (*otpgate.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*otpgate.Account, error)
}

// Options tunes NewRouter. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler
}

// NewRouter mounts every endpoint on a chi router.
//
// Middleware order: RequestID, RealIP, Recoverer, Logging.
func NewRouter(svc Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(clientIP)

	r.Post("/signup/", h.signup)
	r.Post("/resend-otp/", h.resend)
	r.Post("/verify-otp/", h.verify)
	r.Post("/login/", h.login)

	r.With(middleware.Guard(svc)).Get("/me/", h.me)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, messageBody{Message: "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r
}

// clientIP copies the remote address, already rewritten by RealIP, into the
// context for audit events.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otpgate.WithClientIP(r.Context(), hostOnly(r.RemoteAddr))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
