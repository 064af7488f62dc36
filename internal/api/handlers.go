package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/deckservice"
)

// ApprovalHeader carries the serialized approval token on destructive
// requests.
const ApprovalHeader = "X-Approval-Token"

// Handler holds API route handlers.
type Handler struct {
	svc *deckservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *deckservice.Service) *Handler {
	return &Handler{svc: svc}
}

// deckPath extracts the deck path from the URL wildcard. Supports encoded
// slashes from OpenAPI clients (e.g. team%2Fq3.pptx).
func deckPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := deckPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("deck path is required"))
		return "", false
	}
	return path, true
}

// ListDecks handles GET /api/decks.
func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListDecks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": rows, "total": len(rows)})
}

// CreateDeck handles POST /api/decks.
func (h *Handler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	var req CreateDeckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.CreateDeck(r.Context(), req.Path, req.Slides)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// InspectDeck handles GET /api/decks/*.
func (h *Handler) InspectDeck(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Inspect(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Version handles GET /api/version/*.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Version(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path, "version": v})
}

// Probe handles GET /api/probe/*. ?deep=true resolves placeholder
// inheritance through the layout chain.
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	deep := r.URL.Query().Get("deep") == "true"
	res, err := h.svc.Probe(r.Context(), path, deep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History handles GET /api/history/*.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.History(r.Context(), path, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// AddShape handles POST /api/shapes/*.
func (h *Handler) AddShape(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req AddShapeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.AddTextBox(r.Context(), path, req.SlideIndex, req.Position, req.Size, req.Text, req.Fill)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// SetOpacity handles POST /api/opacity/*.
func (h *Handler) SetOpacity(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req OpacityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.SetOpacity(r.Context(), path, req.SlideIndex, req.ShapeIndex, req.Generation, req.Opacity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reorder handles POST /api/reorder/*.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.ReorderShape(r.Context(), path, req.SlideIndex, req.ShapeIndex, req.Generation, deck.ZOrderOp(req.Op))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReplaceText handles POST /api/replace-text/*. Deck-wide replacement
// (slide_index -1) reads the approval token from the X-Approval-Token
// header.
func (h *Handler) ReplaceText(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req ReplaceTextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.ReplaceText(r.Context(), path, req.SlideIndex, req.Old, req.New, r.Header.Get(ApprovalHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RemoveShape handles DELETE /api/shapes/*?slide=N&shape=N.
func (h *Handler) RemoveShape(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	slide, err := strconv.Atoi(q.Get("slide"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'slide' is required"))
		return
	}
	shape, err := strconv.Atoi(q.Get("shape"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'shape' is required"))
		return
	}
	generation, _ := strconv.ParseUint(q.Get("generation"), 10, 64)
	res, err := h.svc.RemoveShape(r.Context(), path, slide, shape, generation, r.Header.Get(ApprovalHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteSlide handles DELETE /api/slides/*?slide=N.
func (h *Handler) DeleteSlide(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	slide, err := strconv.Atoi(q.Get("slide"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'slide' is required"))
		return
	}
	generation, _ := strconv.ParseUint(q.Get("generation"), 10, 64)
	res, err := h.svc.DeleteSlide(r.Context(), path, slide, generation, r.Header.Get(ApprovalHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Contrast handles GET /api/contrast?fg=RRGGBB&bg=RRGGBB.
func (h *Handler) Contrast(w http.ResponseWriter, r *http.Request) {
	fg := r.URL.Query().Get("fg")
	bg := r.URL.Query().Get("bg")
	if fg == "" || bg == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameters 'fg' and 'bg' are required"))
		return
	}
	res, err := h.svc.CheckContrast(fg, bg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IssueApproval handles POST /api/approvals.
func (h *Handler) IssueApproval(w http.ResponseWriter, r *http.Request) {
	var req IssueApprovalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := h.svc.IssueApproval(req.Scopes, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IssueApprovalResponse{Token: token})
}
