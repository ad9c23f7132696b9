package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/middleware"
)

type handler struct {
	svc    Service
	logger *slog.Logger
}

type signupRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageBody struct {
	Message string              `json:"message"`
	Email   string              `json:"email,omitempty"`
	Token   string              `json:"token,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type accountBody struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Signup(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, failureMessages{
			notification: "Failed to send OTP email.",
		})
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "OTP sent to email. Please verify.", Email: res.Email})
}

func (h *handler) resend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Email required."})
		return
	}
	if _, err := h.svc.Resend(r.Context(), req.Email); err != nil {
		h.fail(w, r, err, failureMessages{
			notFound:     "No pending signup for this email.",
			notification: "Failed to resend OTP.",
		})
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "OTP resent."})
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Verify(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.fail(w, r, err, failureMessages{notFound: "No pending signup."})
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "OTP verified", Token: res.Token})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, failureMessages{})
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Login successful.", Token: res.Token})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageBody{Message: "Invalid token."})
		return
	}
	writeJSON(w, http.StatusOK, accountBody{
		ID:        acct.ID,
		FirstName: acct.FirstName,
		LastName:  acct.LastName,
		Email:     acct.Email,
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Malformed JSON body."})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// failureMessages overrides the default message per error kind for one route.
type failureMessages struct {
	notFound     string
	notification string
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error, msgs failureMessages) {
	status, body := errorResponse(err, msgs)
	if status >= http.StatusInternalServerError {
		h.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, body)
}

func errorResponse(err error, msgs failureMessages) (int, messageBody) {
	switch otpgate.KindOf(err) {
	case otpgate.KindValidation:
		body := messageBody{Message: "Invalid request."}
		var verr *otpgate.ValidationError
		if errors.As(err, &verr) {
			body.Errors = map[string][]string{verr.Field: {verr.Reason}}
		}
		return http.StatusBadRequest, body
	case otpgate.KindConflict:
		return http.StatusConflict, messageBody{Message: "User with this email already exists."}
	case otpgate.KindNotFound:
		msg := msgs.notFound
		if msg == "" {
			msg = "No pending signup."
		}
		return http.StatusBadRequest, messageBody{Message: msg}
	case otpgate.KindUnauthorized:
		switch {
		case errors.Is(err, otpgate.ErrCodeExpired):
			return http.StatusBadRequest, messageBody{Message: "OTP expired."}
		case errors.Is(err, otpgate.ErrInvalidCode):
			return http.StatusBadRequest, messageBody{Message: "Invalid OTP."}
		case errors.Is(err, otpgate.ErrInvalidToken):
			return http.StatusUnauthorized, messageBody{Message: "Invalid token."}
		default:
			return http.StatusBadRequest, messageBody{Message: "Invalid credentials."}
		}
	case otpgate.KindDependency:
		switch {
		case errors.Is(err, otpgate.ErrNotificationFailure) && msgs.notification != "":
			return http.StatusInternalServerError, messageBody{Message: msgs.notification}
		case errors.Is(err, otpgate.ErrCredentialIssuanceFailure):
			return http.StatusInternalServerError, messageBody{Message: "Token generation failed."}
		}
	}
	return http.StatusInternalServerError, messageBody{Message: "Internal server error."}
}
