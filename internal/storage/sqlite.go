package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hisab/internal/core"
)

// SQLiteStore implements Store over a shared SQLite database. The admins
// table holds the single credential document (one row, id = 1) with its
// version counter; the transactions table holds the ledger.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// isConstraintViolation matches the driver's constraint failures by
// message text, which is all database/sql surfaces for them.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "PRIMARY KEY constraint")
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p core.Principal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return core.ErrPrincipalExists
	}

	managers, err := json.Marshal(p.Managers)
	if err != nil {
		return fmt.Errorf("marshal managers: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO admins (id, username, password, created_at, version, managers)
		 VALUES (1, ?, ?, ?, 1, ?)`,
		p.Username, p.Password, p.CreatedAt.Format(time.RFC3339Nano), string(managers))
	if err != nil {
		// Another process can win the bootstrap between our count and
		// our insert; the fixed id turns that into a constraint failure.
		if isConstraintViolation(err) {
			return core.ErrPrincipalExists
		}
		return fmt.Errorf("insert principal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isConstraintViolation(err) {
			return core.ErrPrincipalExists
		}
		return fmt.Errorf("commit bootstrap: %w", err)
	}

	slog.InfoContext(ctx, "Principal bootstrapped", "username", p.Username)
	return nil
}

func (s *SQLiteStore) GetPrincipal(ctx context.Context) (*core.Principal, error) {
	var (
		p        core.Principal
		created  string
		managers string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password, created_at, version, managers FROM admins WHERE id = 1`).
		Scan(&p.Username, &p.Password, &created, &p.Version, &managers)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select principal: %w", err)
	}

	p.Role = core.RoleOwner
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse principal created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(managers), &p.Managers); err != nil {
		return nil, fmt.Errorf("unmarshal managers: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) ReplacePrincipal(ctx context.Context, p core.Principal, expectedVersion int64) error {
	managers, err := json.Marshal(p.Managers)
	if err != nil {
		return fmt.Errorf("marshal managers: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE admins
		 SET username = ?, password = ?, managers = ?, version = version + 1
		 WHERE id = 1 AND version = ?`,
		p.Username, p.Password, string(managers), expectedVersion)
	if err != nil {
		return fmt.Errorf("replace principal: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace principal rows affected: %w", err)
	}
	if affected == 0 {
		current, err := s.GetPrincipal(ctx)
		if err != nil {
			return err
		}
		if current == nil {
			return core.ErrNoPrincipal
		}
		return core.ErrVersionConflict
	}
	return nil
}

func (s *SQLiteStore) InsertTransaction(ctx context.Context, t core.Transaction) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, type, amount_cents, note, receipt, added_by, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(t.Type), t.Amount.Cents, t.Note, t.Receipt, t.AddedBy,
		t.Date.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"added_by", t.AddedBy)
	return id, nil
}

func (s *SQLiteStore) RemoveTransaction(ctx context.Context, id string) error {
	// Deleting an already-deleted id is a benign no-op.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, amount_cents, note, receipt, added_by, date
		 FROM transactions ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t    core.Transaction
			typ  string
			date string
		)
		if err := rows.Scan(&t.ID, &typ, &t.Amount.Cents, &t.Note, &t.Receipt, &t.AddedBy, &date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TxType(typ)
		if t.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("parse transaction date: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// GetTransaction fetches one ledger entry by id; used by the export worker.
// Returns nil when the id is unknown (deleted before export ran).
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	var (
		t    core.Transaction
		typ  string
		date string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, amount_cents, note, receipt, added_by, date
		 FROM transactions WHERE id = ?`, id).
		Scan(&t.ID, &typ, &t.Amount.Cents, &t.Note, &t.Receipt, &t.AddedBy, &date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	t.Type = core.TxType(typ)
	if t.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
		return nil, fmt.Errorf("parse transaction date: %w", err)
	}
	return &t, nil
}
