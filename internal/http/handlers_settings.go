package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"pennylogs/internal/core"
	"pennylogs/internal/currency"
)

type createCategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type convertResponse struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Converted decimal.Decimal `json:"converted"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, user core.User) {
	list, err := s.b.Settings.Categories(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, user core.User) {
	var in createCategoryRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.b.Settings.CreateCategory(r.Context(), user.ID, core.Category{Name: in.Name, Icon: in.Icon})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, user core.User) {
	if err := s.b.Settings.DeleteCategory(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request, user core.User) {
	p, err := s.b.Settings.Preferences(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request, user core.User) {
	var in core.Preferences
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.b.Settings.SetPreferences(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleConvert serves GET /api/convert?from=EUR&amount=12.50[&to=GBP].
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request, _ core.User) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil || amount.IsNegative() {
		writeError(w, r, fmt.Errorf("%w: amount %q", errBadQuery, q.Get("amount")))
		return
	}
	from, err := currency.NormalizeCode(q.Get("from"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := currency.NormalizeCode(q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	converted, err := s.b.Currency.ConvertBetween(r.Context(), from, to, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{From: from, To: to, Amount: amount, Converted: converted})
}
