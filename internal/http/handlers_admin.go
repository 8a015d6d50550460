package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"bottega/internal/core"
	"bottega/internal/services"
)

type userRequest struct {
	Username   string     `json:"username" validate:"required,max=64"`
	Password   string     `json:"password" validate:"max=128"`
	Name       string     `json:"name" validate:"required,max=100"`
	Role       core.Role  `json:"role" validate:"required,oneof=admin shift_manager worker"`
	HourlyRate core.Money `json:"hourly_rate"`
}

func (req userRequest) input() services.UserInput {
	return services.UserInput{
		Username:   req.Username,
		Password:   req.Password,
		Name:       req.Name,
		Role:       req.Role,
		HourlyRate: req.HourlyRate,
	}
}

// targetRequest omits a field to take the shop default.
type targetRequest struct {
	Year               int              `json:"year" validate:"required"`
	Month              int              `json:"month" validate:"required,min=1,max=12"`
	RevenueTarget      *core.Money      `json:"revenue_target"`
	ProductCostPercent *decimal.Decimal `json:"product_cost_percent"`
	LaborCostPercent   *decimal.Decimal `json:"labor_cost_percent"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.ListUsers(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rows))
}

// handleCreateUser relies on the ledger to reject a missing password as too
// short.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.ledger.CreateUser(r.Context(), identityFrom(r.Context()), req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// handleUpdateUser keeps the password when the body leaves it empty.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req userRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.ledger.UpdateUser(r.Context(), identityFrom(r.Context()), id, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteUser(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTargets lists one year, the current one by default.
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	year, ok, err := queryInt(r.URL.Query(), "year")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		year = s.now().Year()
	}
	rows, err := s.ledger.ListTargets(r.Context(), identityFrom(r.Context()), year)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rows))
}

func (s *Server) handleUpsertTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.ledger.UpsertTarget(r.Context(), identityFrom(r.Context()), services.TargetInput{
		Year:               req.Year,
		Month:              req.Month,
		RevenueTarget:      req.RevenueTarget,
		ProductCostPercent: req.ProductCostPercent,
		LaborCostPercent:   req.LaborCostPercent,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
