package httpapi

import (
	"errors"
	"net/http"
	"time"

	"epicrm.org/internal/audit"
	"epicrm.org/internal/auth"
	"epicrm.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  identity  `json:"identity"`
}

type identity struct {
	ID         int64  `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, expiresAt, who, err := a.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			obs.ObserveLogin("invalid_credentials")
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
				"email": req.Email,
			})
			// one message for unknown email and wrong password alike
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication failed")
		return
	}

	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.session.issued", map[string]any{
		"identity_id": who.ID,
		"department":  string(who.Department),
		"expires_at":  expiresAt.UTC().Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity: identity{
			ID:         who.ID,
			FullName:   who.FullName,
			Email:      who.Email,
			Department: string(who.Department),
		},
	})
}
