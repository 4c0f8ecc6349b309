package handlers

import (
	"net/http"
	"strings"

	"github.com/mediauqi/money-tracker/internal/api/middleware"
)

// NewRouter wires the handlers onto a ServeMux. Middleware is applied by
// the caller so tests can exercise routing without log output.
func NewRouter(ledgerH *LedgerHandler, accountsH *AccountsHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		accountsH.Signup(w, r)
	})

	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		accountsH.Signin(w, r)
	})

	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/profile/")
		if userID := strings.TrimSuffix(rest, "/emoji"); userID != rest {
			if r.Method != http.MethodPut {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			if userID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "User ID is required")
				return
			}
			accountsH.UpdateEmoji(w, r, userID)
			return
		}
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, "User ID is required")
			return
		}
		accountsH.GetProfile(w, r, rest)
	})

	mux.HandleFunc("/balance/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		userID := strings.TrimPrefix(r.URL.Path, "/balance/")
		if userID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "User ID is required")
			return
		}
		ledgerH.GetBalance(w, r, userID)
	})

	mux.HandleFunc("/transaction/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/transaction/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "ID is required")
			return
		}
		switch r.Method {
		case http.MethodPost:
			ledgerH.AddTransaction(w, r, id)
		case http.MethodDelete:
			ledgerH.DeleteTransaction(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		userID := strings.TrimPrefix(r.URL.Path, "/transactions/")
		if userID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "User ID is required")
			return
		}
		ledgerH.ListTransactions(w, r, userID)
	})

	return mux
}
