package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"bottega/internal/core"
	"bottega/internal/services"
)

// saleRequest is the body of a sale submission or edit. UserID zero means
// the caller on submit and the current owner on edit.
type saleRequest struct {
	UserID     int64      `json:"user_id" validate:"gte=0"`
	CategoryID int64      `json:"category_id" validate:"required,gt=0"`
	Amount     core.Money `json:"amount"`
	Date       core.Date  `json:"date"`
	Notes      string     `json:"notes" validate:"max=500"`
}

func (req saleRequest) sale(id int64) core.Sale {
	return core.Sale{
		ID:         id,
		UserID:     req.UserID,
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Date:       req.Date,
		Notes:      req.Notes,
	}
}

type shiftRequest struct {
	UserID int64           `json:"user_id" validate:"gte=0"`
	Date   core.Date       `json:"date"`
	Hours  decimal.Decimal `json:"hours"`
}

func (req shiftRequest) shift(id int64) core.Shift {
	return core.Shift{ID: id, UserID: req.UserID, Date: req.Date, Hours: req.Hours}
}

// submitted answers 201 for a new row and 200 when the day's row was
// replaced.
func submitted(w http.ResponseWriter, res services.SubmitResult) {
	status := http.StatusCreated
	if res.Updated {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.ledger.ListSales(r.Context(), identityFrom(r.Context()), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rows))
}

func (s *Server) handleSubmitSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.SubmitSale(r.Context(), identityFrom(r.Context()), req.sale(0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	submitted(w, res)
}

func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req saleRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.UpdateSale(r.Context(), identityFrom(r.Context()), req.sale(id)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteSale(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListShifts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.ledger.ListShifts(r.Context(), identityFrom(r.Context()), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rows))
}

func (s *Server) handleSubmitShift(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.SubmitShift(r.Context(), identityFrom(r.Context()), req.shift(0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	submitted(w, res)
}

func (s *Server) handleUpdateShift(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req shiftRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.UpdateShift(r.Context(), identityFrom(r.Context()), req.shift(id)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteShift(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteShift(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
