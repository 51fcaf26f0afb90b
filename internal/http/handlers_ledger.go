package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hisab/internal/authz"
	"hisab/internal/core"
	applog "hisab/internal/log"
)

type recordRequest struct {
	Type    string `json:"type"`
	Amount  string `json:"amount"`
	Note    string `json:"note"`
	Receipt string `json:"receipt"`
}

type snapshotResponse struct {
	Revision     int64              `json:"revision"`
	Transactions []core.Transaction `json:"transactions"`
	Totals       core.Totals        `json:"totals"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.recordTransaction(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, authz.OpViewLedger); !ok {
		return
	}
	snap, err := s.ledger.Current(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load ledger", "error", err)
		writeDomainError(w, err)
		return
	}
	if snap.Transactions == nil {
		snap.Transactions = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		Revision:     snap.Revision,
		Transactions: snap.Transactions,
		Totals:       core.ComputeTotals(snap.Transactions),
	})
}

func (s *Server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	session, ok := s.authorize(w, r, authz.OpAddTransaction)
	if !ok {
		return
	}
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	typ := core.TxType(strings.TrimSpace(req.Type))
	if !typ.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "type must be income or expense"})
		return
	}

	tx, err := s.ledger.Record(r.Context(), typ,
		strings.TrimSpace(req.Amount),
		sanitizeInput(req.Note),
		sanitizeInput(req.Receipt),
		session.Username)
	if err != nil {
		fields := applog.NewFields().
			WithError(err).
			WithOperation(applog.OpCreate).
			WithComponent(applog.ComponentLedger)
		slog.WarnContext(r.Context(), "Transaction rejected", fields.ToSlice()...)
		writeDomainError(w, err)
		return
	}

	fields := applog.NewFields().
		WithTransaction(tx.ID, string(tx.Type), tx.Amount.Cents).
		WithSession(session.Username, string(session.Role)).
		WithOperation(applog.OpCreate).
		WithComponent(applog.ComponentLedger)
	slog.InfoContext(r.Context(), "Transaction recorded", fields.ToSlice()...)
	writeJSON(w, http.StatusCreated, tx)
}

// handleTransactionByID erases one entry. Erasing an id that is already
// gone still returns 204; the end state is identical.
func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := s.authorize(w, r, authz.OpDeleteTransaction)
	if !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing transaction id"})
		return
	}

	if err := s.ledger.Erase(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "Transaction erased", "transaction_id", id, "erased_by", session.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r, authz.OpViewLedger); !ok {
		return
	}
	snap, err := s.ledger.Current(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, core.ComputeTotals(snap.Transactions))
}

// handleExpenseReport selects expense rows for a calendar range.
// mode=today covers the current local day; mode=custom needs from and to
// (YYYY-MM-DD, both inclusive).
func (s *Server) handleExpenseReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r, authz.OpViewLedger); !ok {
		return
	}

	q := r.URL.Query()
	mode := core.ReportMode(strings.TrimSpace(q.Get("mode")))
	if mode == "" {
		mode = core.ReportToday
	}

	var from, to time.Time
	var err error
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = parseDate(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from date, expected YYYY-MM-DD"})
			return
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = parseDate(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to date, expected YYYY-MM-DD"})
			return
		}
	}

	snap, err := s.ledger.Current(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cacheKey := fmt.Sprintf("%d|%s|%s|%s|%s", snap.Revision, mode,
		from.Format("2006-01-02"), to.Format("2006-01-02"),
		time.Now().Format("2006-01-02"))
	if report, ok := s.reportCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := core.SelectExpenses(snap.Transactions, mode, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if report.Rows == nil {
		report.Rows = []core.Transaction{}
	}

	s.reportCache.Set(cacheKey, report)
	writeJSON(w, http.StatusOK, report)
}

// handleStream pushes full ledger snapshots to the client as server-sent
// events. A subscriber always gets the current snapshot first, then only
// the latest state after each change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r, authz.OpViewLedger); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	snapshots, cancel := s.ledger.Observe()
	defer cancel()

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Stream subscriber connected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-snapshots:
			if !open {
				return
			}
			if snap.Transactions == nil {
				snap.Transactions = []core.Transaction{}
			}
			payload := snapshotResponse{
				Revision:     snap.Revision,
				Transactions: snap.Transactions,
				Totals:       core.ComputeTotals(snap.Transactions),
			}
			if err := writeEvent(w, "ledger", payload); err != nil {
				slog.DebugContext(r.Context(), "Stream write failed, dropping subscriber", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
