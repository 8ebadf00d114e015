package web

import (
	"net/http"

	"github.com/vbonduro/cardledger/internal/domain"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	collectorID := r.PathValue("id")
	query := trimmed(r.URL.Query().Get("q"))

	var cards []domain.CardRef
	if query != "" {
		var err error
		cards, err = s.service.SearchCards(r.Context(), collectorID, query)
		if err != nil {
			s.writeError(w, r, "search", err)
			return
		}
	}

	view, err := s.service.Inventory(r.Context(), collectorID)
	if err != nil {
		s.writeError(w, r, "search", err)
		return
	}

	data := map[string]any{
		"CollectorID": collectorID,
		"Results":     cards,
		"Query":       query,
		"Remaining":   view.Remaining,
	}

	// HTMX partial update: return only results fragment.
	if r.Header.Get("HX-Request") == "true" {
		if err := s.renderPartial(w, "partials/search_results.html", data); err != nil {
			s.logger.Error("render partial error", "error", err)
		}
		return
	}

	data["ActiveNav"] = "collectors"
	if err := s.renderPage(w, data,
		"base.html", "pages/search.html", "partials/search_results.html",
	); err != nil {
		s.logger.Error("render page error", "error", err)
	}
}
