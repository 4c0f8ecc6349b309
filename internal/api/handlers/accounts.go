package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mediauqi/money-tracker/internal/api/middleware"
	"github.com/mediauqi/money-tracker/internal/directory"
	"github.com/mediauqi/money-tracker/internal/ledger"
)

// AccountsHandler handles signup, signin and profile endpoints.
type AccountsHandler struct {
	dir *directory.Directory
	svc *ledger.Service
	log zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(dir *directory.Directory, svc *ledger.Service, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{dir: dir, svc: svc, log: log}
}

// publicUser is the caller-visible subset of a directory record.
type publicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Emoji    string `json:"emoji"`
}

// Signup handles POST /signup
func (h *AccountsHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Emoji    string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.dir.Signup(r.Context(), req.Username, req.Password, req.Emoji)
	if err != nil {
		writeDomainError(w, h.log, err, "Signup failed")
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("User created")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    publicUser{ID: user.ID, Username: user.Username, Emoji: user.Emoji},
	})
}

// Signin handles POST /signin
func (h *AccountsHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.dir.Signin(r.Context(), req.Username, req.Password)
	if errors.Is(err, directory.ErrInvalidCredentials) {
		middleware.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, h.log, err, "Signin failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    publicUser{ID: user.ID, Username: user.Username, Emoji: user.Emoji},
	})
}

// GetProfile handles GET /profile/:userId
func (h *AccountsHandler) GetProfile(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.dir.Lookup(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to get profile")
		return
	}

	bal, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to get profile")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":            user.ID,
		"username":      user.Username,
		"emoji":         user.Emoji,
		"balance":       bal.Balance,
		"totalIncome":   bal.TotalIncome,
		"totalExpenses": bal.TotalExpenses,
	})
}

// UpdateEmoji handles PUT /profile/:userId/emoji
func (h *AccountsHandler) UpdateEmoji(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.dir.UpdateEmoji(r.Context(), userID, req.Emoji)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to update emoji")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"emoji":   user.Emoji,
	})
}
