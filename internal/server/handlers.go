package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/search"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/vision"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	response, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		query = q.Get("query")
	}
	limit, ok := s.queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	response, err := s.engine.SemanticSearch(r.Context(), query, limit)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// respondSearchError maps engine errors. Storage causes are logged, never
// returned to the client.
func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrSearchFailed):
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "search failed")
	case errors.Is(err, embedding.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, "embedding provider not configured")
	default:
		s.respondError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.listLimit(w, r)
	if !ok {
		return
	}
	offset, ok := s.queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	q := r.URL.Query()
	status := models.ProcessingStatus(q.Get("processing_status"))
	if status != "" && !status.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid processing_status")
		return
	}
	assets, err := s.storage.ListAssets(r.Context(), storage.AssetQuery{
		Album:            q.Get("album"),
		AssetType:        q.Get("asset_type"),
		MediaType:        q.Get("media_type"),
		ProcessingStatus: status,
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		s.respondFailure(w, "list assets", err)
		return
	}
	s.respondJSON(w, http.StatusOK, summaries(assets))
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.storage.GetAsset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get asset", err)
		return
	}
	s.respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleAnalyzeAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("analyze request", zap.String("id", id))
	a, err := s.indexer.Analyze(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "analyze asset", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"id":                   a.ID,
		"status":               "analyzed",
		"semantic_description": a.SemanticDescription,
		"auto_tags":            a.AutoTags,
		"reusability_score":    a.ReusabilityScore,
	})
}

func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.storage.ListAlbums(r.Context())
	if err != nil {
		s.respondFailure(w, "list albums", err)
		return
	}
	if albums == nil {
		albums = []*models.Album{}
	}
	s.respondJSON(w, http.StatusOK, albums)
}

func (s *Server) handleAlbumAssets(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.listLimit(w, r)
	if !ok {
		return
	}
	offset, ok := s.queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	assets, err := s.storage.ListAlbumAssets(r.Context(), chi.URLParam(r, "name"), limit, offset)
	if err != nil {
		s.respondFailure(w, "list album assets", err)
		return
	}
	s.respondJSON(w, http.StatusOK, summaries(assets))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	db := "healthy"
	if _, err := s.storage.MaxEmbeddingVersion(r.Context()); err != nil {
		s.logger.Warn("health check: database unreachable", zap.Error(err))
		db = "unhealthy"
	}
	status := "healthy"
	if db != "healthy" {
		status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"database":   db,
		"embeddings": s.engine.SemanticAvailable(),
		"vision":     s.indexer.HasAnalyzer(),
	})
}

func summaries(assets []*models.Asset) []*models.AssetSummary {
	out := make([]*models.AssetSummary, len(assets))
	for i, a := range assets {
		out[i] = a.Summary()
	}
	return out
}

func (s *Server) listLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, ok := s.queryInt(w, r, "limit", 0)
	if !ok {
		return 0, false
	}
	limit, err := search.ClampLimit(limit, defaultListLimit, maxListLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return limit, true
}

// queryInt parses an optional non-negative integer query parameter.
func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

// respondFailure maps pipeline and storage errors to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "asset not found")
	case errors.Is(err, embedding.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, "embedding provider not configured")
	case errors.Is(err, vision.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, "vision analyzer not configured")
	case errors.Is(err, indexer.ErrNoObjectStore):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, indexer.ErrNoImage), errors.Is(err, indexer.ErrInvalidImage):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
