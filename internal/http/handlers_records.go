package http

import (
	"net/http"
	"strings"

	"bottega/internal/core"
	"bottega/internal/store"
)

type expenseRequest struct {
	CategoryID int64      `json:"category_id" validate:"required,gt=0"`
	SupplierID *int64     `json:"supplier_id" validate:"omitempty,gt=0"`
	Amount     core.Money `json:"amount"`
	Date       core.Date  `json:"date"`
	Notes      string     `json:"notes" validate:"max=500"`
}

func (req expenseRequest) expense(id int64) core.Expense {
	return core.Expense{
		ID:         id,
		CategoryID: req.CategoryID,
		SupplierID: req.SupplierID,
		Amount:     req.Amount,
		Date:       req.Date,
		Notes:      req.Notes,
	}
}

// categoryRequest leaves the type unchecked here so an unknown type
// surfaces as the ledger's category-type error.
type categoryRequest struct {
	Name string            `json:"name" validate:"required,max=100"`
	Type core.CategoryType `json:"type" validate:"required"`
}

type supplierRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	ContactName string `json:"contact_name" validate:"max=200"`
	Phone       string `json:"phone" validate:"max=50"`
	Email       string `json:"email" validate:"omitempty,email,max=200"`
}

func (req supplierRequest) supplier(id int64) core.Supplier {
	return core.Supplier{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		ContactName: strings.TrimSpace(req.ContactName),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.ledger.ListExpenses(r.Context(), identityFrom(r.Context()), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rows))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e := req.expense(0)
	id, err := s.ledger.CreateExpense(r.Context(), identityFrom(r.Context()), e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e.ID = id
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e := req.expense(id)
	if err := s.ledger.UpdateExpense(r.Context(), identityFrom(r.Context()), e); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteExpense(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCategories accepts ?type= as a shorthand for category_type.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.Filter
	t := q.Get("type")
	if t == "" {
		t = q.Get("category_type")
	}
	if t = strings.TrimSpace(t); t != "" {
		f.CategoryType = core.CategoryType(t)
		if !f.CategoryType.IsValid() {
			s.writeError(w, r, core.InvalidCategoryType("unknown category type %q", t))
			return
		}
	}
	rows, err := s.ledger.ListCategories(r.Context(), identityFrom(r.Context()), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rows))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c := core.Category{Name: strings.TrimSpace(req.Name), Type: req.Type}
	id, err := s.ledger.CreateCategory(r.Context(), identityFrom(r.Context()), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c.ID = id
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c := core.Category{ID: id, Name: strings.TrimSpace(req.Name), Type: req.Type}
	if err := s.ledger.UpdateCategory(r.Context(), identityFrom(r.Context()), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteCategory(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.ListSuppliers(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rows))
}

func (s *Server) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sup := req.supplier(0)
	id, err := s.ledger.CreateSupplier(r.Context(), identityFrom(r.Context()), sup)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sup.ID = id
	writeJSON(w, http.StatusCreated, sup)
}

func (s *Server) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req supplierRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sup := req.supplier(id)
	if err := s.ledger.UpdateSupplier(r.Context(), identityFrom(r.Context()), sup); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

func (s *Server) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteSupplier(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
