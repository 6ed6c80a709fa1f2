package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"dashboard-auth/internal/observability"
)

// TokenJanitor clears credential state that has aged out.
type TokenJanitor interface {
	ClearExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error)
}

// CleanupHandler serves the cron-invoked cleanup endpoint. It is disabled
// (404) unless a cron secret is configured.
type CleanupHandler struct {
	janitor    TokenJanitor
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(janitor TokenJanitor, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		janitor:    janitor,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.janitor.ClearExpiredRefreshTokens(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"cleared_refresh_tokens": cleared,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "ok",
		"cleared_refresh_tokens": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
