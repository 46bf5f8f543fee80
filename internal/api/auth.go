package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type changePasswordResponse struct {
	Message         string `json:"message"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	pair, err := s.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch authcore.KindOf(err) {
		case authcore.KindInvalidCredentials:
			writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid username or password")
		case authcore.KindAccountDisabled:
			writeError(w, http.StatusForbidden, ErrCodeAccountDisabled, "account is inactive")
		default:
			middleware.WriteAuthError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a refresh token. Every failure other than a store outage is
// answered with the same generic invalid response.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if authcore.KindOf(err) == authcore.KindStoreUnavailable {
			middleware.WriteAuthError(w, err)
			return
		}
		middleware.WriteAuthError(w, authcore.ErrInvalidOrExpiredToken)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes whatever tokens were presented. It answers 204 even for missing,
// expired or already revoked tokens.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	accessToken, _ := middleware.BearerToken(r.Header.Get("Authorization"))

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("ignoring unreadable logout body", "error", err)
	}

	if err := s.engine.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteAuthError(w, authcore.ErrTokenMalformed)
		return
	}

	resp := meResponse{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
		Email:    claims.Email,
		JTI:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChangePassword changes the caller's own password and ends their refresh sessions.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteAuthError(w, authcore.ErrTokenMalformed)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeBadRequest(w, "old_password and new_password are required")
		return
	}

	revoked, err := s.engine.ChangePassword(r.Context(), claims.Subject, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid old password")
		case errors.Is(err, authcore.ErrPasswordPolicy), errors.Is(err, authcore.ErrPasswordReuse):
			writeError(w, http.StatusBadRequest, ErrCodePasswordPolicy, err.Error())
		case errors.Is(err, authcore.ErrPasswordChangeUnsupported):
			writeInternalError(w)
		default:
			middleware.WriteAuthError(w, err)
		}
		return
	}

	s.logger.Info("password changed", "user_id", claims.Subject, "sessions_revoked", revoked)
	writeJSON(w, http.StatusOK, changePasswordResponse{
		Message:         "password changed",
		SessionsRevoked: revoked,
	})
}
