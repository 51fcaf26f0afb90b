package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

type (
	// Role is the closed set of account roles. Raw strings never reach an
	// authorization decision; callers go through Valid and the authz
	// capability table.
	Role string

	TxType string

	Money struct {
		Cents int64 `json:"cents"`
	}

	// Manager is a delegated account embedded in the Principal document.
	Manager struct {
		Username  string    `json:"username"`
		Password  string    `json:"password"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Principal is the single owner account and the root of the credential
	// graph. Managers live inside it; every credential mutation rewrites
	// the whole document, guarded by Version.
	Principal struct {
		Username  string    `json:"username"`
		Password  string    `json:"password"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"createdAt"`
		Managers  []Manager `json:"managers"`
		Version   int64     `json:"-"`
	}

	// Transaction is one immutable ledger entry. Receipt is a filename
	// reference only; the file itself is never stored here.
	Transaction struct {
		ID      string    `json:"id"`
		Type    TxType    `json:"type"`
		Amount  Money     `json:"amount"`
		Note    string    `json:"note"`
		Receipt string    `json:"receipt,omitempty"`
		AddedBy string    `json:"addedBy"`
		Date    time.Time `json:"date"`
	}

	// Session is the in-memory result of a successful authentication. It is
	// an explicit value threaded through every gated operation, never
	// process-wide state.
	Session struct {
		Username string `json:"username"`
		Role     Role   `json:"role"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyField         = errors.New("empty field")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrNoChange           = errors.New("nothing to change")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrPrincipalExists    = errors.New("principal already exists")
	ErrNoPrincipal        = errors.New("no principal registered")
	ErrUnknownManager     = errors.New("unknown manager")
	ErrMissingDateRange   = errors.New("missing date range")
	ErrVersionConflict    = errors.New("credential document version conflict")
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager:
		return true
	default:
		return false
	}
}

func (t TxType) Valid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeUsername trims surrounding whitespace. Comparison stays
// case-sensitive.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

// Manager returns the embedded manager entry with the given username, or nil.
func (p *Principal) Manager(username string) *Manager {
	for i := range p.Managers {
		if p.Managers[i].Username == username {
			return &p.Managers[i]
		}
	}
	return nil
}

// HasUsername reports whether the username collides with the owner or any
// embedded manager.
func (p *Principal) HasUsername(username string) bool {
	if p.Username == username {
		return true
	}
	return p.Manager(username) != nil
}

// Clone returns a deep copy so callers can build a document candidate
// without mutating the snapshot they derived it from.
func (p Principal) Clone() Principal {
	out := p
	out.Managers = append([]Manager(nil), p.Managers...)
	return out
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return errors.New("invalid transaction type")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.AddedBy) == "" {
		return ErrEmptyField
	}
	if t.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}
