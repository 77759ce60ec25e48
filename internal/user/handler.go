package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/token"
)

// Handler exposes HTTP endpoints for user operations (register / login / me).
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CredentialsRequest is the body of /register and /login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) decode(r *http.Request) (CredentialsRequest, error) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, apierr.Validation("invalid JSON body")
	}
	if req.Email == "" || req.Password == "" {
		return req, apierr.Validation("%s", ErrMissingFields.Error())
	}
	return req, nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		apierr.Write(w, h.logger, err)
		return
	}
	if err := h.svc.Register(r.Context(), req.Email, req.Password); err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		apierr.Write(w, h.logger, err)
		return
	}
	tok, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	email, ok := token.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, h.logger, apierr.ErrUnauthorized)
		return
	}
	p, err := h.svc.Me(r.Context(), email)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, p)
}

// RevokeSessions invalidates every token issued to the caller, including the
// one used for this request.
func (h *Handler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	email, ok := token.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, h.logger, apierr.ErrUnauthorized)
		return
	}
	v, err := h.svc.RevokeSessions(r.Context(), email)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	h.logger.Infow("sessions revoked", "email", email, "token_version", v)
	apierr.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// map common errors to the API taxonomy
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrMissingFields):
		return apierr.Validation("%s", err.Error())
	case errors.Is(err, ErrUserExists):
		return fmt.Errorf("%w: %v", apierr.ErrConflict, err)
	case errors.Is(err, ErrUserNotFound):
		return fmt.Errorf("%w: %v", apierr.ErrNotFound, err)
	case errors.Is(err, ErrBadCredentials):
		return fmt.Errorf("%w: %v", apierr.ErrUnauthorized, err)
	case errors.Is(err, ErrTrialExpired):
		return apierr.ErrTrialExpired
	default:
		return err
	}
}
