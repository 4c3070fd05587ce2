// handlers/admin_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gewnthar/bondstats/config"
	"github.com/gewnthar/bondstats/models"
	"github.com/gewnthar/bondstats/services"
	"github.com/rs/zerolog"
)

// Runner refreshes the published datasets.
type Runner interface {
	Run(ctx context.Context) (*services.Summary, error)
	RunCategory(ctx context.Context, category string) (*services.CategorySummary, error)
}

// CacheLister lists the documents held in the content cache.
type CacheLister interface {
	Entries() []models.CacheEntry
}

// VersionLister is the optional document version store.
type VersionLister interface {
	Ping(ctx context.Context) error
	ListDocumentVersions(ctx context.Context) ([]models.DataSourceVersion, error)
}

// AdminHandler serves health, refresh and document listing endpoints.
// Only one refresh runs at a time.
type AdminHandler struct {
	runner   Runner
	cache    CacheLister
	versions VersionLister
	logger   zerolog.Logger
	running  sync.Mutex
}

// NewAdminHandler wires the handler. versions may be nil.
func NewAdminHandler(runner Runner, cache CacheLister, versions VersionLister, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		runner:   runner,
		cache:    cache,
		versions: versions,
		logger:   logger.With().Str("component", "AdminHandler").Logger(),
	}
}

// Register mounts the admin routes on mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/api/admin/refresh/", h.Refresh) // Path ends with / to catch sub-paths
	mux.HandleFunc("/api/admin/documents", h.Documents)
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("Error marshalling JSON response")
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *AdminHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.logger.Warn().Int("status", code).Msg(message)
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// Health handles GET /api/health. The database is pinged when configured.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}
	if h.versions != nil {
		if err := h.versions.Ping(r.Context()); err != nil {
			h.logger.Error().Err(err).Msg("Health check failed: DB ping error")
			h.respondWithJSON(w, http.StatusInternalServerError, map[string]string{
				"status":  "error",
				"message": "database connection error",
			})
			return
		}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"cache_entries": len(h.cache.Entries()),
		"database":      h.versions != nil,
	})
}

// Refresh handles POST /api/admin/refresh/{category} where category is one of
// the configured categories or "all". It responds with the run summary.
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// Expected path: api/admin/refresh/{category}
	if len(pathParts) != 4 || pathParts[3] == "" {
		h.respondWithError(w, http.StatusBadRequest, "Invalid path. Expected /api/admin/refresh/{category}")
		return
	}
	target := strings.ToLower(pathParts[3])
	if target != "all" && !slices.Contains(config.Categories, target) {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid category '%s'. Use one of %s or 'all'.", target, strings.Join(config.Categories, ", ")))
		return
	}

	if !h.running.TryLock() {
		h.respondWithError(w, http.StatusConflict, "A refresh is already running")
		return
	}
	defer h.running.Unlock()

	h.logger.Info().Str("target", target).Msg("Refresh requested")
	var (
		payload any
		err     error
	)
	if target == "all" {
		var summary *services.Summary
		summary, err = h.runner.Run(r.Context())
		payload = summary
	} else {
		var summary *services.CategorySummary
		summary, err = h.runner.RunCategory(r.Context(), target)
		payload = summary
	}
	if err != nil {
		h.logger.Error().Err(err).Str("target", target).Msg("Refresh failed")
		h.respondWithJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   fmt.Sprintf("Failed to refresh %s: %v", target, err),
			"summary": payload,
		})
		return
	}
	h.respondWithJSON(w, http.StatusOK, payload)
}

// Documents handles GET /api/admin/documents.
func (h *AdminHandler) Documents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	resp := struct {
		Cached   []models.CacheEntry        `json:"cached"`
		Versions []models.DataSourceVersion `json:"versions,omitempty"`
	}{Cached: h.cache.Entries()}
	if resp.Cached == nil {
		resp.Cached = []models.CacheEntry{}
	}

	if h.versions != nil {
		versions, err := h.versions.ListDocumentVersions(r.Context())
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list document versions: %v", err))
			return
		}
		resp.Versions = versions
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}
