package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"hisab/internal/core"
)

type sessionEntry struct {
	session  core.Session
	password string // credential pair seen at login, checked per snapshot
}

// Sessions is the process-local session registry. Nothing here is
// persisted: restarting the process logs everyone out, which is the
// intended model. The registry watches credential-document snapshots and
// revokes any session whose login-time credential pair no longer matches
// the live document, so a credential change always forces re-login rather
// than silently refreshing the session.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{entries: make(map[string]sessionEntry)}
}

// Issue registers a session and returns its opaque token.
func (s *Sessions) Issue(session core.Session, password string) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = sessionEntry{session: session, password: password}
	return token
}

// Get resolves a token to its session value. The session is returned by
// value and threaded explicitly through the operations it authorizes.
func (s *Sessions) Get(token string) (core.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	return entry.session, ok
}

// Revoke drops a single session (logout).
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
}

// Apply reconciles every live session against a credential-document
// snapshot, revoking the ones whose credentials no longer match.
func (s *Sessions) Apply(doc core.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, entry := range s.entries {
		if stillValid(doc, entry) {
			continue
		}
		delete(s.entries, token)
		slog.Info("Session revoked by credential change",
			"username", entry.session.Username,
			"role", entry.session.Role)
	}
}

// Watch consumes credential snapshots until the channel closes or the
// context ends.
func (s *Sessions) Watch(ctx context.Context, snapshots <-chan core.Principal) {
	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-snapshots:
			if !ok {
				return
			}
			s.Apply(doc)
		}
	}
}

func stillValid(doc core.Principal, entry sessionEntry) bool {
	switch entry.session.Role {
	case core.RoleOwner:
		return doc.Username == entry.session.Username && doc.Password == entry.password
	case core.RoleManager:
		m := doc.Manager(entry.session.Username)
		return m != nil && m.Password == entry.password
	default:
		return false
	}
}
