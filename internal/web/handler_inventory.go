package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type addCardForm struct {
	CardID   string `validate:"required,max=64,excludesall=/\\"`
	Quantity int    `validate:"min=1"`
}

func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Inventory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "get inventory", err)
		return
	}

	if err := s.renderPage(w,
		map[string]any{"View": view, "ActiveNav": "collectors"},
		"base.html", "pages/inventory.html", "partials/inventory_table.html",
	); err != nil {
		s.logger.Error("render page error", "error", err)
	}
}

func (s *Server) handleAddCard(w http.ResponseWriter, r *http.Request) {
	collectorID := r.PathValue("id")

	form := addCardForm{CardID: trimmed(r.FormValue("card_id")), Quantity: 1}
	if raw := trimmed(r.FormValue("quantity")); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "quantity must be a whole number", http.StatusBadRequest)
			return
		}
		form.Quantity = qty
	}
	if err := s.validate.Struct(form); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}
	if limit := s.service.Capacity(); form.Quantity > limit {
		http.Error(w, fmt.Sprintf("quantity must be at most %d", limit), http.StatusBadRequest)
		return
	}

	if _, err := s.service.AddCard(r.Context(), collectorID, form.CardID, form.Quantity); err != nil {
		s.writeError(w, r, "add card", err)
		return
	}
	s.renderInventoryTable(w, r, collectorID)
}

func (s *Server) handleDecrement(w http.ResponseWriter, r *http.Request) {
	collectorID := r.PathValue("id")

	if _, err := s.service.Decrement(r.Context(), collectorID, r.PathValue("entryID")); err != nil {
		s.writeError(w, r, "decrement", err)
		return
	}
	s.renderInventoryTable(w, r, collectorID)
}

func (s *Server) renderInventoryTable(w http.ResponseWriter, r *http.Request, collectorID string) {
	view, err := s.service.Inventory(r.Context(), collectorID)
	if err != nil {
		s.writeError(w, r, "get inventory", err)
		return
	}
	if err := s.renderPartial(w, "partials/inventory_table.html", view); err != nil {
		s.logger.Error("render partial error", "error", err)
	}
}

func trimmed(s string) string { return strings.TrimSpace(s) }
