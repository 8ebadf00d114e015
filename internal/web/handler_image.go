package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/vbonduro/cardledger/internal/imagestore"
)

// placeholderSVG is served while a card image has not been downloaded yet.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="245" height="342" viewBox="0 0 245 342">` +
	`<rect width="245" height="342" rx="12" fill="#e5e7eb"/>` +
	`<text x="50%" y="50%" text-anchor="middle" font-family="sans-serif" font-size="16" fill="#6b7280">Loading image</text>` +
	`</svg>`

func (s *Server) handleCardImage(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")
	if err := s.validate.Var(cardID, "required,max=64,excludesall=/\\"); err != nil {
		http.Error(w, "invalid card id", http.StatusBadRequest)
		return
	}

	rc, mimeType, err := s.images.Get(r.Context(), cardID)
	if err == nil {
		defer func() {
			if cerr := rc.Close(); cerr != nil {
				s.logger.Error("failed to close image", "error", cerr)
			}
		}()
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if _, err := io.Copy(w, rc); err != nil {
			s.logger.Error("failed to write image", "card_id", cardID, "error", err)
		}
		return
	}
	if !errors.Is(err, imagestore.ErrNotFound) {
		s.logger.Warn("image lookup failed", "card_id", cardID, "error", err)
	} else if s.prefetch != nil {
		if card, err := s.service.Card(r.Context(), cardID); err == nil {
			s.prefetch.Enqueue(card.ID, card.ImageURL)
		} else {
			s.logger.Debug("cannot prefetch image", "card_id", cardID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, placeholderSVG)
}
