package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"vscmirror/internal/extensions"
	"vscmirror/internal/updates"
	"vscmirror/internal/utils"
)

const (
	serviceVersion = "1.0.0"
	maxQueryBody   = 1 << 20
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "vscmirror",
		"description": "Offline mirror of the Visual Studio Code update service and extension gallery",
		"version":     serviceVersion,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"endpoints": map[string]string{
			"gallery":         queryRoute,
			"update":          updateRoute,
			"commit":          commitRoute,
			"recommendations": recommendationsRoute,
			"malicious":       maliciousRoute,
			"artifacts":       utils.ArtifactsURLPrefix + "/",
		},
	}
	if s.index != nil {
		snap := s.index.Snapshot()
		index := map[string]interface{}{
			"state":      s.index.State().String(),
			"extensions": snap.Len(),
		}
		if !snap.LoadedAt.IsZero() {
			index["loadedAt"] = snap.LoadedAt
		}
		info["index"] = index
	}

	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleExtensionQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q, err := extensions.DecodeQuery(http.MaxBytesReader(w, r.Body, maxQueryBody), s.logger.Slog())
	if err != nil {
		s.logger.Slog().Info("rejected gallery query", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := extensions.NewSnapshot()
	if s.index != nil {
		snap = s.index.Snapshot()
	}
	result := s.engine.Search(snap, q)
	s.logger.LogPerformance("gallery query", time.Since(start))
	s.logger.Slog().Debug("gallery query",
		"criteria", len(q.Criteria),
		"sortBy", q.SortBy.String(),
		"page", q.PageNumber,
		"total", result.Total,
		"fallback", result.Fallback,
	)

	w.Header().Set(utils.ContentTypeHeader, utils.HTTPAPIVersion)
	s.writeJSON(w, http.StatusOK, result.Response())
}

// updateStatus maps responder errors to the status codes clients expect.
func updateStatus(err error) (int, string) {
	switch {
	case errors.Is(err, updates.ErrNoUpdate):
		return http.StatusNoContent, "no_update"
	case errors.Is(err, updates.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, updates.ErrHashMismatch):
		return http.StatusForbidden, "hash_mismatch"
	default:
		return http.StatusInternalServerError, "unavailable"
	}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		s.writeError(w, http.StatusInternalServerError, "update service not configured")
		return
	}
	vars := mux.Vars(r)
	def, err := s.updates.ResolveUpdate(vars["platform"], vars["quality"], vars["commit"])
	if err != nil {
		status, result := updateStatus(err)
		s.metrics.IncUpdateCheck(result)
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.metrics.IncUpdateCheck("update")
	s.writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		s.writeError(w, http.StatusInternalServerError, "update service not configured")
		return
	}
	vars := mux.Vars(r)
	def, err := s.updates.ResolveCommit(vars["commit"], vars["platform"], vars["quality"])
	if err != nil {
		status, _ := updateStatus(err)
		s.writeError(w, status, err.Error())
		return
	}

	w.Header().Set(utils.LocationHeader, def.URL)
	w.WriteHeader(http.StatusFound)
}

// handleRawFile serves a feed file from the mirror root exactly as the
// sync stored it.
func (s *Server) handleRawFile(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(filepath.Join(s.artifactsDir, name))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.Slog().Warn("unable to read feed", "file", name, "error", err)
			}
			s.writeError(w, http.StatusNotFound, name+" not mirrored")
			return
		}
		w.Header().Set(utils.ContentTypeHeader, utils.OctetStreamContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.LogNotFound(r.Method, r.URL.Path)
	s.writeError(w, http.StatusNotFound, "Page not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.logger.LogMethodNotAllowed(r.Method, r.URL.Path)
	s.writeError(w, http.StatusMethodNotAllowed, "Method not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if contentType := w.Header().Get(utils.ContentTypeHeader); contentType == "" || !strings.Contains(contentType, "api-version") {
		w.Header().Set(utils.ContentTypeHeader, utils.JSONContentType)
	}
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.LogJSONError(err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	errorResponse := map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
		"status":  status,
	}

	s.writeJSON(w, status, errorResponse)
}
