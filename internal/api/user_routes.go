package api

import (
	"net/http"
	"strings"

	"github.com/kjannette/stonks-backend/internal/models"
	"github.com/kjannette/stonks-backend/internal/money"
)

const maxUsernameLen = 64

type createUserRequest struct {
	Username string `json:"username"`
}

type userResponse struct {
	*models.User
	CashDisplay string `json:"cashDisplay"`
}

// POST /v1/users
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if len(name) > maxUsernameLen {
		writeError(w, http.StatusBadRequest, "username is too long")
		return
	}

	u, err := s.Store.CreateUser(r.Context(), name, s.InitialCash)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.log.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("user created")
	writeJSON(w, http.StatusCreated, userResponse{User: u, CashDisplay: money.FormatCents(u.Cash)})
}

// GET /v1/users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.Store.GetUser(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: u, CashDisplay: money.FormatCents(u.Cash)})
}
