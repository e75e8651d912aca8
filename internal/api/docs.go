package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// @Title: List Documentation
// @Route: GET /api/docs
// @Description: Lists the AsciiDoc pages served by this node
// @Response: ["api.adoc", "..."]
func (s *Service) HandleDocsList(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "documentation not configured")
		return
	}
	names, err := s.docs.ListDocs()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list documentation")
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, names)
}

// @Title: Get Documentation Page
// @Route: GET /api/docs/{name}
// @Description: Renders an AsciiDoc page to HTML
// @Response: text/html fragment
func (s *Service) HandleDoc(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "documentation not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".adoc") {
		s.writeError(w, http.StatusBadRequest, "invalid document name")
		return
	}

	html, err := s.docs.GetDoc(r.Context(), name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
