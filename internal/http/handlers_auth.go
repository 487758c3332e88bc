package http

import (
	"net/http"

	"pennylogs/internal/auth"
	"pennylogs/internal/core"
	applog "pennylogs/internal/log"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userHandler func(w http.ResponseWriter, r *http.Request, user core.User)

// authed resolves the bearer token to a user or answers 401.
func (s *Server) authed(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.b.Auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="pennylogs"`)
			writeError(w, r, err)
			return
		}
		// Sessions outlive the process; resume the user's reconciler on first use.
		s.b.Sessions.Start(user.ID)
		logger := applog.FromContext(r.Context()).With(applog.FieldUserID, user.ID)
		next(w, r.WithContext(applog.NewContext(r.Context(), logger)), user)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.b.Auth.Register(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.b.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := s.b.Auth.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
