package http

import (
	"log/slog"
	"net/http"
	"strings"

	"hisab/internal/authz"
	"hisab/internal/core"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token    string    `json:"token"`
	Username string    `json:"username"`
	Role     core.Role `json:"role"`
}

// handleBootstrap tells a fresh client whether the owner account exists,
// routing it to registration or login.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	state, err := s.authn.ResolveBootstrapState(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to resolve bootstrap state", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasPrincipal": state.HasPrincipal})
}

// handleRegister creates the one owner account. After the first success
// every further call conflicts.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	session, err := s.authn.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token := s.sessions.Issue(session, strings.TrimSpace(req.Password))
	slog.InfoContext(r.Context(), "Owner account registered", "username", session.Username)
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, Username: session.Username, Role: session.Role})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	session, err := s.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token := s.sessions.Issue(session, strings.TrimSpace(req.Password))
	slog.InfoContext(r.Context(), "Login", "username", session.Username, "role", string(session.Role))
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, Username: session.Username, Role: session.Role})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if token := bearerToken(r); token != "" {
		s.sessions.Revoke(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleManagers lists or adds delegated accounts. Owner only.
func (s *Server) handleManagers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listManagers(w, r)
	case http.MethodPost:
		s.addManager(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listManagers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, authz.OpManageManagers); !ok {
		return
	}
	doc, err := s.creds.Current(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if doc == nil {
		writeDomainError(w, core.ErrNoPrincipal)
		return
	}
	managers := doc.Managers
	if managers == nil {
		managers = []core.Manager{}
	}
	writeJSON(w, http.StatusOK, managers)
}

func (s *Server) addManager(w http.ResponseWriter, r *http.Request) {
	session, ok := s.authorize(w, r, authz.OpManageManagers)
	if !ok {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := s.creds.AddManager(r.Context(), req.Username, req.Password); err != nil {
		writeDomainError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "Manager added",
		"username", core.NormalizeUsername(req.Username),
		"added_by", session.Username)
	w.WriteHeader(http.StatusCreated)
}

// handleManagerByName removes one delegated account. Removal is a no-op
// for names that are not managers.
func (s *Server) handleManagerByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := s.authorize(w, r, authz.OpManageManagers)
	if !ok {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/managers/")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing manager name"})
		return
	}

	if err := s.creds.RemoveManager(r.Context(), name); err != nil {
		writeDomainError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "Manager removed", "username", name, "removed_by", session.Username)
	w.WriteHeader(http.StatusNoContent)
}

// handleCredentials updates the calling account's own username and/or
// password. The current session is revoked; the client must log in again.
func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", "PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := s.authorize(w, r, authz.OpChangeOwnCredentials)
	if !ok {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := s.creds.UpdateCredentials(r.Context(), session.Username, req.Username, req.Password); err != nil {
		writeDomainError(w, err)
		return
	}

	// Drop the caller's session immediately rather than waiting for the
	// snapshot watcher to catch up.
	s.sessions.Revoke(bearerToken(r))

	slog.InfoContext(r.Context(), "Credentials updated", "username", session.Username)
	w.WriteHeader(http.StatusNoContent)
}
