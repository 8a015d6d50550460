package http

import (
	"net/http"
)

// handleDashboard serves the monthly summary; year and month default to
// the current month.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseMonth(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Dashboard(r.Context(), identityFrom(r.Context()), year, month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
