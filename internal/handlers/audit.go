package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tannerhall/mantrap/internal/auth"
	"github.com/tannerhall/mantrap/internal/services"
	pkghttp "github.com/tannerhall/mantrap/pkg/http"
)

// AuditHandler exposes the user's own verification attempt history
type AuditHandler struct {
	auditService *services.AuditService
	logger       *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditService *services.AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// Recent handles GET /2fa/audit
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	entries, err := h.auditService.RecentAttempts(r.Context(), identity.UserID, limit)
	if err != nil {
		h.logger.Error("failed to load audit trail", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve audit trail")
		return
	}

	resp := AuditTrailResponse{Entries: make([]AuditEntryResponse, len(entries))}
	for i, entry := range entries {
		resp.Entries[i] = AuditEntryResponse{
			Method:    entry.Method,
			Success:   entry.Success,
			IPAddress: entry.IPAddress,
			UserAgent: entry.UserAgent,
			CreatedAt: entry.CreatedAt,
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
