package web

import (
	"net/http"

	"github.com/vbonduro/cardledger/internal/service"
)

type collectorForm struct {
	Name string `validate:"required,max=64"`
}

func (s *Server) handleListCollectors(w http.ResponseWriter, r *http.Request) {
	collectors, err := s.service.ListCollectors(r.Context())
	if err != nil {
		s.writeError(w, r, "list collectors", err)
		return
	}

	if err := s.renderPage(w,
		map[string]any{"Collectors": collectors, "ActiveNav": "collectors"},
		"base.html", "pages/collectors.html", "partials/collector_card.html",
	); err != nil {
		s.logger.Error("render page error", "error", err)
	}
}

func (s *Server) handleCreateCollector(w http.ResponseWriter, r *http.Request) {
	form := collectorForm{Name: trimmed(r.FormValue("name"))}
	if err := s.validate.Struct(form); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	c, err := s.service.CreateCollector(r.Context(), form.Name)
	if err != nil {
		s.writeError(w, r, "create collector", err)
		return
	}

	summary := &service.CollectorSummary{Collector: c, Capacity: s.service.Capacity()}
	if err := s.renderPartial(w, "partials/collector_card.html", summary); err != nil {
		s.logger.Error("render partial error", "error", err)
	}
}

func (s *Server) handleDeleteCollector(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteCollector(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, "delete collector", err)
		return
	}

	w.Header().Set("HX-Redirect", "/collectors")
	w.WriteHeader(http.StatusOK)
}
