// Package auth establishes identity: first-time owner bootstrap, login
// against the credential document, and the process-local session registry
// that revokes sessions when their credentials change underneath them.
package auth

import (
	"context"

	"hisab/internal/core"
	"hisab/internal/services"
)

// BootstrapState tells the caller whether to route to login or to the
// one-time owner registration.
type BootstrapState struct {
	HasPrincipal bool            `json:"hasPrincipal"`
	Principal    *core.Principal `json:"-"`
}

// Authenticator validates credentials against the live credential
// document. Passwords are compared in plaintext, faithfully matching the
// system this replaces; see the design notes before reusing this anywhere
// security-sensitive.
type Authenticator struct {
	creds *services.CredentialService
}

func NewAuthenticator(creds *services.CredentialService) *Authenticator {
	return &Authenticator{creds: creds}
}

// ResolveBootstrapState reports whether a principal exists yet.
func (a *Authenticator) ResolveBootstrapState(ctx context.Context) (BootstrapState, error) {
	p, err := a.creds.Current(ctx)
	if err != nil {
		return BootstrapState{}, err
	}
	return BootstrapState{HasPrincipal: p != nil, Principal: p}, nil
}

// Login checks the trimmed pair against the principal first, then linearly
// against each manager; first match wins. Managers can never share the
// owner's username, so the priority order cannot misattribute a role.
func (a *Authenticator) Login(ctx context.Context, username, password string) (core.Session, error) {
	username = core.NormalizeUsername(username)
	password = core.NormalizeUsername(password)
	if username == "" || password == "" {
		return core.Session{}, core.ErrEmptyField
	}

	p, err := a.creds.Current(ctx)
	if err != nil {
		return core.Session{}, err
	}
	if p == nil {
		return core.Session{}, core.ErrNoPrincipal
	}

	if p.Username == username && p.Password == password {
		return core.Session{Username: username, Role: core.RoleOwner}, nil
	}
	for _, m := range p.Managers {
		if m.Username == username && m.Password == password {
			return core.Session{Username: username, Role: core.RoleManager}, nil
		}
	}
	return core.Session{}, core.ErrInvalidCredentials
}

// Register performs the one-time owner bootstrap and returns the owner
// session. Valid only while no principal exists.
func (a *Authenticator) Register(ctx context.Context, username, password string) (core.Session, error) {
	p, err := a.creds.CreatePrincipal(ctx, username, password)
	if err != nil {
		return core.Session{}, err
	}
	return core.Session{Username: p.Username, Role: core.RoleOwner}, nil
}
