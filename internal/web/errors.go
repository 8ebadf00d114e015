package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vbonduro/cardledger/internal/ledger"
	"github.com/vbonduro/cardledger/internal/service"
)

// errorStatus maps a service or ledger error to an HTTP status and a message
// safe to show the user.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return http.StatusConflict, "Maximum number of cards reached"
	case errors.Is(err, service.ErrCollectorExists):
		return http.StatusConflict, "A collector with that name already exists"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest, "Quantity must be at least 1"
	case errors.Is(err, service.ErrInvalidName):
		return http.StatusBadRequest, "Collector name is required"
	case errors.Is(err, service.ErrCollectorNotFound):
		return http.StatusNotFound, "Collector not found"
	case errors.Is(err, service.ErrCardNotFound):
		return http.StatusNotFound, "Card not found in catalog"
	case errors.Is(err, ledger.ErrEntryNotFound):
		return http.StatusNotFound, "Inventory entry not found"
	case errors.Is(err, service.ErrCatalogUnavailable):
		return http.StatusBadGateway, "Card catalog is unavailable, try again later"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug(op+" rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	http.Error(w, msg, status)
}

// validationMessage flattens validator errors into one user-facing line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "printascii", "excludesall":
			msgs = append(msgs, field+" contains invalid characters")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
