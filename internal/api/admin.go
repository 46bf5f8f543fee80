package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/users"
)

type userListResponse struct {
	Total int             `json:"total"`
	Users []authcore.User `json:"users"`
}

type sessionListResponse struct {
	UserID   string             `json:"user_id"`
	Total    int                `json:"total"`
	Sessions []authcore.Session `json:"sessions"`
}

type refreshTokensResponse struct {
	Total                   int                `json:"total"`
	ActiveRefreshTokens     []authcore.Session `json:"active_refresh_tokens"`
	BlacklistedAccessTokens int                `json:"blacklisted_access_tokens"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list := s.users.List(r.Context())
	writeJSON(w, http.StatusOK, userListResponse{Total: len(list), Users: list})
}

// handleToggleStatus flips a user's active flag. Deactivation also revokes every refresh
// session of the user; outstanding access tokens fail the active re-check from then on.
func (s *Server) handleToggleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	current, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeUserError(w, err)
		return
	}

	updated, err := s.users.SetActive(r.Context(), id, !current.IsActive)
	if err != nil {
		s.writeUserError(w, err)
		return
	}

	if !updated.IsActive {
		if _, err := s.revokeUser(r.Context(), id); err != nil {
			middleware.WriteAuthError(w, err)
			return
		}
	}

	s.logger.Info("user status changed",
		"user_id", id,
		"is_active", updated.IsActive,
		"by", actor(r.Context()),
	)
	writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	target, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeUserError(w, err)
		return
	}
	if target.Role == authcore.RoleAdmin {
		writeForbidden(w, "cannot delete admin users")
		return
	}
	if target.ID == actor(r.Context()) {
		writeForbidden(w, "cannot delete yourself")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.writeUserError(w, err)
		return
	}
	revoked, err := s.revokeUser(r.Context(), id)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	s.logger.Info("user deleted", "user_id", id, "revoked_sessions", revoked, "by", actor(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_user":     map[string]string{"id": target.ID, "username": target.Username},
		"revoked_sessions": revoked,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sessions, err := s.engine.ListSessions(r.Context(), id)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionListResponse{UserID: id, Total: len(sessions), Sessions: sessions})
}

func (s *Server) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.revokeUser(r.Context(), id)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "revoked": n})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RevokeSession(r.Context(), chi.URLParam(r, "jti")); err != nil {
		middleware.WriteAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefreshTokens summarises live refresh sessions across all known users, or for
// the user named by ?user_id, together with the access-token blacklist size.
func (s *Server) handleRefreshTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ids []string
	if id := r.URL.Query().Get("user_id"); id != "" {
		ids = []string{id}
	} else {
		for _, u := range s.users.List(ctx) {
			ids = append(ids, u.ID)
		}
	}

	resp := refreshTokensResponse{ActiveRefreshTokens: []authcore.Session{}}
	for _, id := range ids {
		sessions, err := s.engine.ListSessions(ctx, id)
		if err != nil {
			middleware.WriteAuthError(w, err)
			return
		}
		resp.ActiveRefreshTokens = append(resp.ActiveRefreshTokens, sessions...)
	}
	resp.Total = len(resp.ActiveRefreshTokens)

	n, err := s.engine.RevocationCount(ctx)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}
	resp.BlacklistedAccessTokens = n

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSecurityReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.SecurityReport())
}

func (s *Server) revokeUser(ctx context.Context, userID string) (int, error) {
	n, err := s.engine.RevokeAllSessions(ctx, userID)
	s.engine.InvalidateUser(userID)
	return n, err
}

func (s *Server) writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrUserNotFound):
		writeNotFound(w, "user not found")
	case errors.Is(err, users.ErrProtectedUser):
		writeForbidden(w, "cannot deactivate admin users")
	default:
		s.logger.Error("user store error", "error", err)
		writeInternalError(w)
	}
}

func actor(ctx context.Context) string {
	if claims, ok := middleware.ClaimsFromContext(ctx); ok {
		return claims.Subject
	}
	return ""
}
