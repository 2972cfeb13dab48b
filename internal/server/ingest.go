package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/classifier"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/objectstore"
)

const maxThumbnailUpload = 32 << 20

func (s *Server) handleIngestSpec(w http.ResponseWriter, r *http.Request) {
	maxDim, quality := s.indexer.ThumbnailSettings()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"version": "1.0",
		"storage": map[string]any{
			"thumbnails": map[string]any{
				"base_path":     objectstore.ThumbnailPrefix,
				"max_dimension": maxDim,
				"format":        "jpg",
				"quality":       quality,
			},
		},
		"required_metadata": []string{"source_id", "filename"},
		"optional_metadata": []string{
			"source_type", "content_type", "media_type", "file_size", "width", "height",
			"md5_checksum", "album_path", "album_name", "source_tags", "source_keywords",
			"approval_status", "owner_name", "thumbnail_url", "full_url", "source_url",
		},
		"classification": classifier.CurrentRules(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req indexer.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.indexer.Register(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "register asset", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, res)
}

type batchItem struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	SourceID string `json:"source_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

type batchResponse struct {
	Registered int         `json:"registered"`
	Failed     int         `json:"failed"`
	Results    []batchItem `json:"results"`
	Errors     []batchItem `json:"errors"`
}

// handleBatchRegister registers each item independently; one bad item does
// not fail the batch.
func (s *Server) handleBatchRegister(w http.ResponseWriter, r *http.Request) {
	var reqs []indexer.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp := batchResponse{Results: []batchItem{}, Errors: []batchItem{}}
	for i := range reqs {
		res, err := s.indexer.Register(r.Context(), &reqs[i])
		if err != nil {
			resp.Errors = append(resp.Errors, batchItem{Index: i, SourceID: reqs[i].SourceID, Error: err.Error()})
			continue
		}
		resp.Results = append(resp.Results, batchItem{Index: i, ID: res.ID, Status: "success"})
	}
	resp.Registered, resp.Failed = len(resp.Results), len(resp.Errors)
	s.logger.Debug("batch register", zap.Int("registered", resp.Registered), zap.Int("failed", resp.Failed))
	s.respondJSON(w, http.StatusOK, resp)
}

// handleThumbnail accepts the image as the raw body or as multipart field "file".
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxThumbnailUpload)

	var body io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
			return
		}
		defer file.Close()
		body = file
	}

	url, err := s.indexer.AttachThumbnail(r.Context(), id, body)
	if err != nil {
		s.respondFailure(w, "store thumbnail", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "thumbnail_url": url, "status": "uploaded"})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.indexer.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "complete ingestion", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}
