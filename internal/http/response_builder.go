package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bottega/internal/core"
)

type errorBody struct {
	Error    string   `json:"error"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
	Blockers []string `json:"blockers,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// list renders nil slices as [] so clients never see null.
func list[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

// statusFor maps ledger error kinds to HTTP statuses.
func statusFor(err error) int {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}
	switch ce.Kind {
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindValidation:
		if ce.Code == core.CodeInvalidCategoryType {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case core.KindReferentialConflict:
		return http.StatusConflict
	case core.KindSelfDeletion:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError renders err. Store failures hide their cause from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: string(core.KindOf(err)), Message: err.Error()}

	var ce *core.Error
	if errors.As(err, &ce) {
		body.Code = ce.Code
		body.Message = ce.Message
		body.Blockers = ce.Blockers
	}
	if status == http.StatusInternalServerError {
		body.Error = string(core.KindStore)
		body.Message = "internal error"
	}

	s.errors.LogRequestError(r.Context(), r, status, err, string(core.KindOf(err)))
	writeJSON(w, status, body)
}
