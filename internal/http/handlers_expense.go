package http

import (
	"net/http"

	"pennylogs/internal/core"
)

type createExpenseRequest struct {
	Name     string     `json:"name"`
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
	Date     core.Date  `json:"date"`
	Monthly  bool       `json:"monthly"`
	// StartDate is informational only.
	StartDate core.Date `json:"startDate"`
	// Currency of Amount; empty means the reference currency.
	Currency string `json:"currency"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, user core.User) {
	list, err := s.b.Expenses.ListExpenses(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	var in createExpenseRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e := core.Expense{
		Name:     in.Name,
		Amount:   in.Amount,
		Category: in.Category,
		Date:     in.Date,
		Monthly:  in.Monthly,

		StartDate: in.StartDate,
	}
	created, err := s.b.Expenses.AddExpense(r.Context(), user.ID, e, in.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	e, err := s.b.Expenses.GetExpense(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	var patch core.ExpensePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.b.Expenses.UpdateExpense(r.Context(), user.ID, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	if err := s.b.Expenses.DeleteExpense(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
