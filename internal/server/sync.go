package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/storage"
)

type syncStatusResponse struct {
	*models.SyncStatus
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.indexer.Status(r.Context())
	if err != nil {
		s.respondFailure(w, "sync status", err)
		return
	}
	resp := syncStatusResponse{SyncStatus: st}
	if s.appConfig != nil {
		sc := s.appConfig.Storage
		if n, err := storage.CatalogDiskUsage(sc.DatabasePath, sc.TrigramIndexPath, s.appConfig.ObjectStore.LocalDir); err == nil {
			resp.DiskUsageBytes = &n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncPending(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.listLimit(w, r)
	if !ok {
		return
	}
	pending, err := s.indexer.Pending(r.Context(), limit)
	if err != nil {
		s.respondFailure(w, "list pending", err)
		return
	}
	if pending == nil {
		pending = []*models.PendingAsset{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"assets": pending, "count": len(pending)})
}

func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.indexer.RetryFailed(r.Context())
	if err != nil {
		s.respondFailure(w, "retry failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"reset_count": n,
		"message":     "Failed assets moved back to pending",
	})
}

func (s *Server) handleReindexAll(w http.ResponseWriter, r *http.Request) {
	n, version, err := s.indexer.ReindexAll(r.Context())
	if err != nil {
		s.respondFailure(w, "reindex all", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"reset_count":       n,
		"embedding_version": version,
		"message":           "Indexed assets queued for re-embedding",
	})
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	report, err := s.indexer.EmbedPending(r.Context())
	if err != nil {
		if report != nil {
			s.logger.Warn("embedding pass interrupted",
				zap.Int("processed", report.Processed), zap.Error(err))
		}
		s.respondFailure(w, "embed pending", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.indexer.Stats(r.Context())
	if err != nil {
		s.respondFailure(w, "library stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}
