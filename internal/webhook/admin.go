package webhook

import (
	"context"
	"net/http"

	"github.com/kmswo146/pipl-cs/pkg/logging"
)

type settingsStore interface {
	BotActive(ctx context.Context) (bool, error)
	SetBotActive(ctx context.Context, active bool) error
}

// AdminHandler exposes the global bot switch over HTTP. It mirrors the
// botctl commands for operators who prefer curl.
type AdminHandler struct {
	settings settingsStore
	logger   *logging.Logger
}

func NewAdminHandler(settings settingsStore, logger *logging.Logger) *AdminHandler {
	if settings == nil {
		panic("webhook: settings store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{settings: settings, logger: logger}
}

func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	active, err := h.settings.BotActive(r.Context())
	if err != nil {
		h.logger.Error("failed to read bot status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read bot status"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bot_status": statusLabel(active)})
}

func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *AdminHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if err := h.settings.SetBotActive(r.Context(), active); err != nil {
		h.logger.Error("failed to update bot status", "active", active, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update bot status"})
		return
	}
	h.logger.Info("bot status updated", "bot_status", statusLabel(active))
	writeJSON(w, http.StatusOK, map[string]string{"bot_status": statusLabel(active)})
}

func statusLabel(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "INACTIVE"
}
