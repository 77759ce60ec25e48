package dream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/token"
)

// Handler exposes the /dreams endpoints. It must be mounted behind
// authentication and the trial gate.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.svc.List(r.Context(), owner)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	in, err := decodeFields(r)
	if err != nil {
		apierr.Write(w, h.logger, err)
		return
	}
	d, err := h.svc.Create(r.Context(), owner, in)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	h.logger.Debugw("dream created", "id", d.ID, "user", owner)
	apierr.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Get(r.Context(), owner, id)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	in, err := decodeFields(r)
	if err != nil {
		apierr.Write(w, h.logger, err)
		return
	}
	d, err := h.svc.Update(r.Context(), owner, id, in)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := token.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, h.logger, apierr.ErrUnauthorized)
		return "", false
	}
	return email, true
}

func (h *Handler) ownerAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return "", "", false
	}
	id := r.PathValue("id")
	if id == "" {
		apierr.Write(w, h.logger, apierr.Validation("missing dream id"))
		return "", "", false
	}
	return owner, id, true
}

func decodeFields(r *http.Request) (Fields, error) {
	var in Fields
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return nil, apierr.Validation("body must be a JSON object")
	}
	if in == nil {
		return nil, apierr.Validation("body must be a JSON object")
	}
	return in, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return apierr.Validation("%s", err.Error())
	case errors.Is(err, ErrDreamNotFound):
		return fmt.Errorf("%w: %v", apierr.ErrNotFound, err)
	default:
		return err
	}
}
