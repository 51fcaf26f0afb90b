// Package services orchestrates mutations against the shared store and
// fans the resulting full snapshots out to observers.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hisab/internal/amqp"
	"hisab/internal/core"
	"hisab/internal/feed"
	"hisab/internal/storage"
)

// ChangePublisher broadcasts a collection-change notification to other
// running instances. A nil publisher disables cross-process notification.
type ChangePublisher interface {
	PublishChange(ctx context.Context, collection string) error
}

// Credential mutations retry this many times on a version conflict before
// giving up; each retry re-reads the authoritative document first.
const casRetries = 3

// CredentialService owns the single credential document: the owner plus
// the embedded managers list. Every mutation is a read-modify-write of the
// whole document guarded by optimistic versioning, and every successful
// mutation republishes the authoritative document to all observers.
type CredentialService struct {
	store   storage.Store
	changes ChangePublisher
	feed    *feed.Feed[core.Principal]
}

func NewCredentialService(store storage.Store, changes ChangePublisher) *CredentialService {
	return &CredentialService{
		store:   store,
		changes: changes,
		feed:    feed.New[core.Principal](),
	}
}

// CreatePrincipal performs the one-time owner bootstrap. It fails with
// core.ErrPrincipalExists once any principal exists; under concurrent
// bootstrap attempts the store picks the first writer.
func (s *CredentialService) CreatePrincipal(ctx context.Context, username, password string) (core.Principal, error) {
	username = core.NormalizeUsername(username)
	password = core.NormalizeUsername(password)
	if username == "" || password == "" {
		return core.Principal{}, core.ErrEmptyField
	}

	p := core.Principal{
		Username:  username,
		Password:  password,
		Role:      core.RoleOwner,
		CreatedAt: time.Now(),
		Managers:  []core.Manager{},
	}
	if err := s.store.CreatePrincipal(ctx, p); err != nil {
		return core.Principal{}, err
	}

	s.Refresh(ctx)
	s.notify(ctx)
	return p, nil
}

// Current returns the live credential document, or nil before bootstrap.
func (s *CredentialService) Current(ctx context.Context) (*core.Principal, error) {
	return s.store.GetPrincipal(ctx)
}

// AddManager appends a delegated account to the document. The username
// must not collide with the owner or any existing manager; on any failure
// the managers list is left untouched.
func (s *CredentialService) AddManager(ctx context.Context, username, password string) error {
	username = core.NormalizeUsername(username)
	password = core.NormalizeUsername(password)
	if username == "" || password == "" {
		return core.ErrEmptyField
	}

	err := s.withRetry(ctx, func(doc *core.Principal) error {
		if doc.HasUsername(username) {
			return core.ErrDuplicateUsername
		}
		doc.Managers = append(doc.Managers, core.Manager{
			Username:  username,
			Password:  password,
			Role:      core.RoleManager,
			CreatedAt: time.Now(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Manager added", "username", username)
	return nil
}

// RemoveManager drops the named manager. Removing an unknown name is a
// benign no-op.
func (s *CredentialService) RemoveManager(ctx context.Context, username string) error {
	username = core.NormalizeUsername(username)

	err := s.withRetry(ctx, func(doc *core.Principal) error {
		kept := doc.Managers[:0]
		for _, m := range doc.Managers {
			if m.Username != username {
				kept = append(kept, m)
			}
		}
		doc.Managers = kept
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Manager removed", "username", username)
	return nil
}

// UpdateCredentials rewrites the credentials of one account: the owner's
// own fields, or exactly one embedded manager entry, leaving the others
// untouched. Blank fields keep their current value; both blank fails with
// core.ErrNoChange. The caller's live session dies with this change: the
// session registry observes the republished document and forces re-login.
func (s *CredentialService) UpdateCredentials(ctx context.Context, who, newUsername, newPassword string) error {
	who = core.NormalizeUsername(who)
	newUsername = core.NormalizeUsername(newUsername)
	newPassword = core.NormalizeUsername(newPassword)
	if newUsername == "" && newPassword == "" {
		return core.ErrNoChange
	}

	err := s.withRetry(ctx, func(doc *core.Principal) error {
		if who == doc.Username {
			if newUsername != "" {
				if doc.Manager(newUsername) != nil {
					return core.ErrDuplicateUsername
				}
				doc.Username = newUsername
			}
			if newPassword != "" {
				doc.Password = newPassword
			}
			return nil
		}

		mgr := doc.Manager(who)
		if mgr == nil {
			return core.ErrUnknownManager
		}
		if newUsername != "" && newUsername != who {
			if doc.HasUsername(newUsername) {
				return core.ErrDuplicateUsername
			}
			mgr.Username = newUsername
		}
		if newPassword != "" {
			mgr.Password = newPassword
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Credentials updated", "who", who)
	return nil
}

// Observe subscribes to full credential-document snapshots.
func (s *CredentialService) Observe() (<-chan core.Principal, func()) {
	return s.feed.Subscribe()
}

// Refresh re-reads the authoritative document and republishes it. Called
// after local mutations and whenever another process reports a change.
func (s *CredentialService) Refresh(ctx context.Context) {
	doc, err := s.store.GetPrincipal(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to refresh credential snapshot", "error", err)
		return
	}
	if doc == nil {
		return
	}
	s.feed.Publish(*doc)
}

func (s *CredentialService) Close() {
	s.feed.Close()
}

// withRetry runs one read-modify-write cycle against the versioned
// document, retrying on version conflicts with a fresh read each time.
func (s *CredentialService) withRetry(ctx context.Context, mutate func(*core.Principal) error) error {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		current, err := s.store.GetPrincipal(ctx)
		if err != nil {
			return err
		}
		if current == nil {
			return core.ErrNoPrincipal
		}

		doc := current.Clone()
		if err := mutate(&doc); err != nil {
			return err
		}

		err = s.store.ReplacePrincipal(ctx, doc, current.Version)
		if err == core.ErrVersionConflict {
			lastErr = err
			continue
		}
		if err != nil {
			return err
		}

		s.Refresh(ctx)
		s.notify(ctx)
		return nil
	}
	return fmt.Errorf("credential update kept conflicting: %w", lastErr)
}

func (s *CredentialService) notify(ctx context.Context) {
	if s.changes == nil {
		return
	}
	if err := s.changes.PublishChange(ctx, amqp.CollectionAdmins); err != nil {
		slog.WarnContext(ctx, "Failed to publish admins change", "error", err)
	}
}
