package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// AdminHandler exposes the operator override for granting premium without a
// payment, used for support cases and manual testing of the upgrade flow.
type AdminHandler struct {
	activator PremiumActivator
	apiKey    string
	logger    *slog.Logger
}

// NewAdminHandler creates the handler guarding the override with apiKey.
func NewAdminHandler(activator PremiumActivator, apiKey string, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		activator: activator,
		apiKey:    apiKey,
		logger:    logger,
	}
}

// RegisterRoutes mounts the admin endpoints under the given router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/premium", h.HandleGrantPremium)
}

type grantPremiumRequest struct {
	UserID string `json:"user_id"`
}

type grantPremiumResponse struct {
	UserID  string `json:"user_id"`
	Premium bool   `json:"premium"`
}

// HandleGrantPremium activates premium for the given chat id. Authentication
// is a shared operator key in the X-Admin-Key header, compared in constant
// time.
func (h *AdminHandler) HandleGrantPremium(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
		h.logger.WarnContext(r.Context(), "admin request with invalid key",
			"remote_addr", r.RemoteAddr)
		Error(w, r, types.NewAppError(
			types.ErrCodeAuthAdminKeyInvalid,
			"invalid admin API key",
			nil,
		))
		return
	}

	var req grantPremiumRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if req.UserID == "" {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user_id is required",
			nil,
		))
		return
	}

	rec, err := h.activator.ActivatePremium(r.Context(), req.UserID)
	if err != nil {
		Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "premium granted by operator", "user_id", req.UserID)
	JSON(w, r, http.StatusOK, APIResponse{Data: grantPremiumResponse{
		UserID:  rec.ID,
		Premium: rec.Premium,
	}})
}
