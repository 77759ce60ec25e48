package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/apierr"
)

// Handler exposes /summarize, /analyze and /find_similar. It must be mounted
// behind authentication and the trial gate.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req SummarizeRequest
	if err := decode(r, &req); err != nil {
		apierr.Write(w, h.logger, err)
		return
	}
	summary, err := h.svc.Summarize(r.Context(), req)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		apierr.Write(w, h.logger, apierr.Validation("content type must be application/json"))
		return
	}
	var req AnalyzeRequest
	if err := decode(r, &req); err != nil {
		apierr.Write(w, h.logger, err)
		return
	}
	reply, err := h.svc.Analyze(r.Context(), req)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

func (h *Handler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req FindSimilarRequest
	if err := decode(r, &req); err != nil {
		apierr.Write(w, h.logger, err)
		return
	}
	similar, err := h.svc.FindSimilar(r.Context(), req)
	if err != nil {
		apierr.Write(w, h.logger, mapError(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"similar": similar})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.svc.Configured() {
		return true
	}
	apierr.Write(w, h.logger, fmt.Errorf("%w: completion api key is not set", apierr.ErrMisconfigured))
	return false
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Validation("invalid JSON body")
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return apierr.Validation("%s", err.Error())
	case errors.Is(err, ErrUpstreamTimeout):
		return fmt.Errorf("%w: %v", apierr.ErrUpstreamTimeout, err)
	default:
		return err
	}
}
