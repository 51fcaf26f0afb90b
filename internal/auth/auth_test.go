package auth

import (
	"context"
	"testing"
	"time"

	"hisab/internal/core"
	"hisab/internal/services"
	"hisab/internal/storage/memory"
)

func newAuthenticator(t *testing.T) (*Authenticator, *services.CredentialService) {
	t.Helper()
	creds := services.NewCredentialService(memory.New(), nil)
	return NewAuthenticator(creds), creds
}

func TestBootstrapFlow(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthenticator(t)

	state, err := a.ResolveBootstrapState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.HasPrincipal {
		t.Fatal("fresh system must report no principal")
	}

	// Login before bootstrap routes the caller to register.
	if _, err := a.Login(ctx, "boss", "secret"); err != core.ErrNoPrincipal {
		t.Fatalf("login pre-bootstrap: got %v, want ErrNoPrincipal", err)
	}

	session, err := a.Register(ctx, "boss", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if session.Role != core.RoleOwner || session.Username != "boss" {
		t.Errorf("session = %+v", session)
	}

	state, err = a.ResolveBootstrapState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !state.HasPrincipal {
		t.Fatal("bootstrap must be visible")
	}

	if _, err := a.Register(ctx, "second", "pw"); err != core.ErrPrincipalExists {
		t.Fatalf("second register: got %v, want ErrPrincipalExists", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	a, creds := newAuthenticator(t)
	if _, err := a.Register(ctx, "boss", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := creds.AddManager(ctx, "sara", "managerpw"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		username string
		password string
		role     core.Role
		err      error
	}{
		{"owner", "boss", "secret", core.RoleOwner, nil},
		{"owner trimmed", "  boss ", " secret ", core.RoleOwner, nil},
		{"manager", "sara", "managerpw", core.RoleManager, nil},
		{"wrong password", "boss", "nope", "", core.ErrInvalidCredentials},
		{"unknown user", "ghost", "pw", "", core.ErrInvalidCredentials},
		{"case sensitive", "Boss", "secret", "", core.ErrInvalidCredentials},
		{"blank", "", "secret", "", core.ErrEmptyField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session, err := a.Login(ctx, tc.username, tc.password)
			if err != tc.err {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if tc.err == nil && session.Role != tc.role {
				t.Errorf("role = %q, want %q", session.Role, tc.role)
			}
		})
	}
}

func TestSessionsRevokedByCredentialChange(t *testing.T) {
	ctx := context.Background()
	a, creds := newAuthenticator(t)
	if _, err := a.Register(ctx, "boss", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := creds.AddManager(ctx, "sara", "managerpw"); err != nil {
		t.Fatal(err)
	}

	registry := NewSessions()
	ownerSession, _ := a.Login(ctx, "boss", "secret")
	ownerToken := registry.Issue(ownerSession, "secret")
	mgrSession, _ := a.Login(ctx, "sara", "managerpw")
	mgrToken := registry.Issue(mgrSession, "managerpw")

	// Rotating the manager's password kills only the manager's session.
	if err := creds.UpdateCredentials(ctx, "sara", "", "rotated"); err != nil {
		t.Fatal(err)
	}
	doc, err := creds.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	registry.Apply(*doc)

	if _, ok := registry.Get(mgrToken); ok {
		t.Error("manager session must be revoked after its credentials changed")
	}
	if _, ok := registry.Get(ownerToken); !ok {
		t.Error("owner session must survive an unrelated credential change")
	}

	// The manager logs back in with the new password.
	if _, err := a.Login(ctx, "sara", "managerpw"); err != core.ErrInvalidCredentials {
		t.Fatalf("stale password: got %v", err)
	}
	if _, err := a.Login(ctx, "sara", "rotated"); err != nil {
		t.Fatalf("fresh password: %v", err)
	}
}

func TestSessionsRevokedByRemoval(t *testing.T) {
	ctx := context.Background()
	a, creds := newAuthenticator(t)
	if _, err := a.Register(ctx, "boss", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := creds.AddManager(ctx, "sara", "pw"); err != nil {
		t.Fatal(err)
	}

	registry := NewSessions()
	session, _ := a.Login(ctx, "sara", "pw")
	token := registry.Issue(session, "pw")

	if err := creds.RemoveManager(ctx, "sara"); err != nil {
		t.Fatal(err)
	}
	doc, err := creds.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	registry.Apply(*doc)

	if _, ok := registry.Get(token); ok {
		t.Error("removed manager's session must be revoked")
	}
}

func TestSessionsWatch(t *testing.T) {
	ctx := context.Background()
	a, creds := newAuthenticator(t)
	if _, err := a.Register(ctx, "boss", "secret"); err != nil {
		t.Fatal(err)
	}

	registry := NewSessions()
	session, _ := a.Login(ctx, "boss", "secret")
	token := registry.Issue(session, "secret")

	snapshots, cancel := creds.Observe()
	defer cancel()
	done := make(chan struct{})
	watchCtx, stop := context.WithCancel(ctx)
	go func() {
		registry.Watch(watchCtx, snapshots)
		close(done)
	}()

	if err := creds.UpdateCredentials(ctx, "boss", "", "changed"); err != nil {
		t.Fatal(err)
	}

	// The watcher applies the new snapshot and drops the stale session.
	for i := 0; i < 100; i++ {
		if _, ok := registry.Get(token); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := registry.Get(token); ok {
		t.Error("session must be revoked once the watcher sees the change")
	}

	stop()
	<-done
}

func TestRevoke(t *testing.T) {
	registry := NewSessions()
	token := registry.Issue(core.Session{Username: "boss", Role: core.RoleOwner}, "pw")
	registry.Revoke(token)
	if _, ok := registry.Get(token); ok {
		t.Error("revoked token must not resolve")
	}
}
