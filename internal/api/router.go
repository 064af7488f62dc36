package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dagaz/internal/deckservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *deckservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Deck registry and creation.
	r.Get("/decks", h.ListDecks)
	r.Post("/decks", h.CreateDeck)
	r.Get("/decks/*", h.InspectDeck)

	// Read-only inspection.
	r.Get("/version/*", h.Version)
	r.Get("/probe/*", h.Probe)
	r.Get("/history/*", h.History)
	r.Get("/contrast", h.Contrast)

	// Mutations.
	r.Post("/shapes/*", h.AddShape)
	r.Post("/opacity/*", h.SetOpacity)
	r.Post("/reorder/*", h.Reorder)
	r.Post("/replace-text/*", h.ReplaceText)

	// Destructive operations; approval token travels in X-Approval-Token.
	r.Delete("/shapes/*", h.RemoveShape)
	r.Delete("/slides/*", h.DeleteSlide)
	r.Post("/approvals", h.IssueApproval)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
