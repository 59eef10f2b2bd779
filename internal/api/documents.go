package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hollowmere/loreforge/internal/store"
	"go.uber.org/zap"
)

// mountDocuments wires the plumbing CRUD routes for one document kind,
// e.g. /api/characters. Documents are plain JSON bodies owned by the
// user named in the X-User-ID header.
func (h *Handler) mountDocuments(r chi.Router, kind string) {
	base := "/" + kind + "s"
	r.Route(base, func(r chi.Router) {
		r.Get("/", h.listDocuments(kind))
		r.Post("/", h.saveDocument(kind))
		r.Get("/{id}", h.getDocument(kind))
		r.Put("/{id}", h.saveDocument(kind))
		r.Delete("/{id}", h.deleteDocument(kind))
	})
}

func (h *Handler) requireDocs(w http.ResponseWriter) bool {
	if h.docs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("Storage is not configured."))
		return false
	}
	return true
}

func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (h *Handler) listDocuments(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireDocs(w) {
			return
		}
		uid := userID(r)
		if uid == "" {
			writeJSON(w, http.StatusBadRequest, errBody("X-User-ID header is required."))
			return
		}
		docs, err := h.docs.List(r.Context(), uid, kind)
		if err != nil {
			h.logger.Error("list documents failed", zap.String("kind", kind), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errBody("Could not load your "+kind+"s."))
			return
		}
		if docs == nil {
			docs = []*store.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func (h *Handler) saveDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireDocs(w) {
			return
		}
		uid := userID(r)
		if uid == "" {
			writeJSON(w, http.StatusBadRequest, errBody("X-User-ID header is required."))
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil || len(body) == 0 || !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, errBody("a JSON body is required."))
			return
		}

		id, err := h.docs.Save(r.Context(), uid, kind, chi.URLParam(r, "id"), body)
		if err != nil {
			h.logger.Error("save document failed", zap.String("kind", kind), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errBody("Could not save your "+kind+"."))
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func (h *Handler) getDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireDocs(w) {
			return
		}
		uid := userID(r)
		if uid == "" {
			writeJSON(w, http.StatusBadRequest, errBody("X-User-ID header is required."))
			return
		}
		doc, err := h.docs.Get(r.Context(), uid, kind, chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errBody(kind+" not found."))
			return
		}
		if err != nil {
			h.logger.Error("get document failed", zap.String("kind", kind), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errBody("Could not load your "+kind+"."))
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) deleteDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireDocs(w) {
			return
		}
		uid := userID(r)
		if uid == "" {
			writeJSON(w, http.StatusBadRequest, errBody("X-User-ID header is required."))
			return
		}
		err := h.docs.Delete(r.Context(), uid, kind, chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errBody(kind+" not found."))
			return
		}
		if err != nil {
			h.logger.Error("delete document failed", zap.String("kind", kind), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errBody("Could not delete your "+kind+"."))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": chi.URLParam(r, "id")})
	}
}
