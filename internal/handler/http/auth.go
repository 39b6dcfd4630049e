package http

import (
	"log/slog"
	"net/http"

	"github.com/AaryaPoriya/QuantumCoders/internal/session"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	"github.com/AaryaPoriya/QuantumCoders/pkg/httputil"
	"github.com/AaryaPoriya/QuantumCoders/pkg/validator"
)

// AuthHandler handles OTP and profile endpoints.
type AuthHandler struct {
	auth   *session.Authenticator
	logger *slog.Logger
}

// NewAuthHandler creates the auth HTTP handler.
func NewAuthHandler(auth *session.Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// --- Request DTOs ---

// RequestOTPRequest is the body for POST /auth/otp/request.
type RequestOTPRequest struct {
	MobileNumber string `json:"mobile_number" validate:"required,mobile"`
}

// VerifyOTPRequest is the body for POST /auth/otp/verify.
type VerifyOTPRequest struct {
	ChallengeRef string `json:"challenge_ref" validate:"required"`
	Code         string `json:"code" validate:"required,len=6,numeric"`
}

// CreateProfileRequest is the body for POST /auth/profile.
type CreateProfileRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

// --- Handlers ---

// RequestOTP handles POST /api/v1/auth/otp/request. The response is uniform
// whether or not the number is registered.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req RequestOTPRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	ref, err := h.auth.RequestOTP(r.Context(), req.MobileNumber)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{
		"challenge_ref": ref,
	}})
}

// VerifyOTP handles POST /api/v1/auth/otp/verify.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.auth.VerifyOTP(r.Context(), req.ChallengeRef, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"token":           res.Token,
		"session_id":      res.Session.ID,
		"state":           res.Session.State,
		"profile_pending": res.ProfilePending,
	}})
}

// CreateProfile handles POST /api/v1/auth/profile. Only valid while the
// session is in the pending-profile window.
func (h *AuthHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthenticated("authentication required"), h.logger)
		return
	}

	var req CreateProfileRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.auth.CreateProfile(r.Context(), sess.ID, req.Name, req.Email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: map[string]any{
		"token":      res.Token,
		"session_id": res.Session.ID,
		"user_id":    res.Session.UserID,
		"state":      res.Session.State,
	}})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthenticated("authentication required"), h.logger)
		return
	}

	if err := h.auth.Logout(r.Context(), sess.ID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
