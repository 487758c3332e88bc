package http

import (
	"net/http"

	"pennylogs/internal/core"
	"pennylogs/internal/services"
)

type dedupeResponse struct {
	Templates []core.Expense `json:"templates"`
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request, user core.User) {
	list, err := s.b.Expenses.ListRecurring(r.Context(), user.ID, s.b.Expenses.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []services.RecurringStatus{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSetPaused(paused bool) userHandler {
	return func(w http.ResponseWriter, r *http.Request, user core.User) {
		e, err := s.b.Expenses.SetPaused(r.Context(), user.ID, r.PathValue("id"), paused)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Server) handleRollForward(w http.ResponseWriter, r *http.Request, user core.User) {
	res, err := s.b.Recurring.RollForward(r.Context(), user.ID, s.b.Expenses.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDedupe(w http.ResponseWriter, r *http.Request, user core.User) {
	out, err := s.b.Recurring.DeduplicateUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	templates := core.Templates(out)
	if templates == nil {
		templates = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, dedupeResponse{Templates: templates})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, user core.User) {
	p, err := parseMonthParams(r, s.b.Expenses.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ov, err := s.b.Expenses.MonthOverview(r.Context(), user.ID, p.Year, p.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
