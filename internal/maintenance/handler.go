package maintenance

import (
	"net/http"
	"strings"
	"time"

	"perks-admin/internal/auth"
	"perks-admin/internal/lead"
	"perks-admin/internal/observability"
	"perks-admin/internal/respond"
)

// CleanupHandler is the cron-triggered janitor: it clears expired account
// lockouts and purges closed leads past their retention window. The route
// only exists meaningfully when a cron secret is configured.
type CleanupHandler struct {
	accounts      *auth.Repository
	leads         *lead.Repository
	logger        *observability.Logger
	cronSecret    string
	lockRetention time.Duration
	leadRetention time.Duration
	batchSize     int
}

func NewCleanupHandler(
	accounts *auth.Repository,
	leads *lead.Repository,
	logger *observability.Logger,
	cronSecret string,
	lockRetention time.Duration,
	leadRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		accounts:      accounts,
		leads:         leads,
		logger:        logger,
		cronSecret:    strings.TrimSpace(cronSecret),
		lockRetention: lockRetention,
		leadRetention: leadRetention,
		batchSize:     batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "unauthorized")
		return
	}

	clearedLocks, err := h.accounts.ClearStaleLockouts(r.Context(), h.lockRetention, h.batchSize)
	if err != nil {
		h.logger.Error("lockout_cleanup_failed", map[string]any{"error": err.Error()})
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "cleanup failed")
		return
	}

	purgedLeads, err := h.leads.DeleteClosed(r.Context(), h.leadRetention, h.batchSize)
	if err != nil {
		h.logger.Error("lead_cleanup_failed", map[string]any{"error": err.Error()})
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "cleanup failed")
		return
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"cleared_lockouts": clearedLocks,
		"purged_leads":     purgedLeads,
	})

	respond.JSON(w, http.StatusOK, map[string]any{
		"cleared_lockouts": clearedLocks,
		"purged_leads":     purgedLeads,
	})
}
