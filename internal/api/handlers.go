package api

import (
	"net/http"
	"strconv"

	"github.com/starford/moxide/internal/session"
)

// Handler serves the debug endpoints.
type Handler struct {
	sess *session.Session
}

// NewHandler creates a debug handler over the session.
func NewHandler(sess *session.Session) *Handler {
	return &Handler{sess: sess}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// graphStats is the /graph response payload.
type graphStats struct {
	Version   uint64         `json:"version"`
	Documents int            `json:"documents"`
	Edges     int            `json:"edges"`
	ByKind    map[string]int `json:"edges_by_kind"`
}

// Graph reports node and edge counts of the current snapshot.
func (h *Handler) Graph(w http.ResponseWriter, _ *http.Request) {
	snap := h.sess.Snapshot()
	stats := graphStats{
		Version:   snap.Version(),
		Documents: len(snap.Docs()),
		ByKind:    map[string]int{},
	}
	kinds := map[int]string{0: "reference", 1: "structure", 2: "transclusion"}
	for p := range snap.Docs() {
		for _, e := range snap.Edges(p) {
			stats.Edges++
			stats.ByKind[kinds[int(e.Kind)]]++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// Symbols runs a workspace symbol search: GET /symbols?q=...&limit=N.
func (h *Handler) Symbols(w http.ResponseWriter, r *http.Request) {
	idx := h.sess.Symbols()
	if idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("symbol index disabled"))
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing q parameter"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	syms, err := idx.Search(q, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, syms)
}
