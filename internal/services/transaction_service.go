package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/tabungin/backend/internal/audit"
	"github.com/tabungin/backend/internal/config"
	"github.com/tabungin/backend/internal/ledger"
	"github.com/tabungin/backend/internal/models"
)

type TransactionService struct {
	db        *sql.DB
	redis     *redis.Client
	config    *config.SchoolConfig
	audit     *audit.AuditLogger
	validator *ValidationHelper
}

// EntryRequest is the payload for deposit and withdrawal submissions. Amount
// stays a raw number here; the ledger package owns its validation so that a
// zero, negative, or non-finite value surfaces as InvalidAmount rather than
// a generic validation error.
type EntryRequest struct {
	Amount      float64    `json:"amount"`
	Description string     `json:"description" validate:"required,max=200"`
	Actor       string     `json:"actor" validate:"required,max=100"`
	OccurredAt  *time.Time `json:"occurredAt"`
	Reference   string     `json:"reference" validate:"omitempty,max=64"`
}

func NewTransactionService(db *sql.DB, redisClient *redis.Client, cfg *config.SchoolConfig) *TransactionService {
	return &TransactionService{
		db:        db,
		redis:     redisClient,
		config:    cfg,
		audit:     audit.NewAuditLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateDeposit records a Pemasukan entry for a student
// @Summary Record a deposit
// @Description Record a deposit (Pemasukan) for the given student
// @Tags transactions
// @Accept json
// @Produce json
// @Param nis path string true "Student NIS"
// @Param entry body EntryRequest true "Deposit data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis}/deposits [post]
func (ts *TransactionService) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	ts.createEntry(w, r, models.KindIncome)
}

// CreateWithdrawal records a Pengeluaran entry for a student
// @Summary Record a withdrawal
// @Description Record a withdrawal (Pengeluaran); rejected when it exceeds the current balance
// @Tags transactions
// @Accept json
// @Produce json
// @Param nis path string true "Student NIS"
// @Param entry body EntryRequest true "Withdrawal data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis}/withdrawals [post]
func (ts *TransactionService) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	ts.createEntry(w, r, models.KindExpense)
}

func (ts *TransactionService) createEntry(w http.ResponseWriter, r *http.Request, kind models.TransactionKind) {
	nis := chi.URLParam(r, "nis")

	var req EntryRequest
	if !ts.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	if exists, err := ts.studentExists(nis); err != nil {
		log.Printf("[TRANSACTION] Student lookup failed for %s: %v", nis, err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	} else if !exists {
		SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		return
	}

	txID := req.Reference
	if txID == "" {
		txID = uuid.NewString()
	}

	// Check for duplicate reference (idempotency)
	var existingAmount int64
	err := ts.db.QueryRow(`SELECT amount FROM transactions WHERE transaction_id = $1`, txID).Scan(&existingAmount)
	if err == nil {
		log.Printf("[TRANSACTION] Duplicate reference detected: %s", txID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"success":       true,
			"transactionId": txID,
			"message":       "Transaction already recorded",
		})
		return
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	var amount int64
	if kind == models.KindExpense {
		amount, err = ts.insertWithdrawal(r, nis, txID, req, occurredAt)
	} else {
		amount, err = ts.insertDeposit(r, nis, txID, req, occurredAt)
	}
	if err != nil {
		ts.audit.LogError(txID, nis, err)
		ts.writeLedgerError(w, err)
		return
	}

	ts.invalidateSummary(r.Context(), nis)
	ts.audit.LogEntry(txID, nis, string(kind), amount, req.Actor)

	tx := models.Transaction{
		TransactionID: txID,
		StudentNIS:    nis,
		Kind:          kind,
		Amount:        amount,
		Description:   req.Description,
		Actor:         req.Actor,
		OccurredAt:    occurredAt,
		CreatedAt:     time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": tx,
	})
}

func (ts *TransactionService) insertDeposit(r *http.Request, nis, txID string, req EntryRequest, occurredAt time.Time) (int64, error) {
	amount, err := ledger.ValidateDeposit(req.Amount)
	if err != nil {
		return 0, err
	}

	metadata, _ := json.Marshal(models.Metadata{"channel": "api", "ip_address": clientIP(r)})

	dbTx, err := ts.db.Begin()
	if err != nil {
		return 0, err
	}
	defer dbTx.Rollback()

	if err := ts.lockStudent(dbTx, nis); err != nil {
		return 0, err
	}

	_, err = dbTx.Exec(`
        INSERT INTO transactions
        (transaction_id, student_nis, kind, amount, description, actor, metadata, occurred_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
    `, txID, nis, string(models.KindIncome), amount, req.Description, req.Actor, metadata, occurredAt)
	if err != nil {
		return 0, err
	}

	return amount, dbTx.Commit()
}

// insertWithdrawal runs the fast-path validation and then re-checks the
// balance invariant inside the database transaction: the student row is
// locked to serialize writers per account, and the insert is conditional on
// the full-history balance covering the amount. An insert that matches zero
// rows means a concurrent writer drained the balance after the fast path.
func (ts *TransactionService) insertWithdrawal(r *http.Request, nis, txID string, req EntryRequest, occurredAt time.Time) (int64, error) {
	history, err := ts.fetchTransactions(nis)
	if err != nil {
		return 0, err
	}

	summary := ledger.Summarize(history)
	amount, err := ledger.ValidateWithdrawal(summary.Balance, req.Amount)
	if err != nil {
		return 0, err
	}

	metadata, _ := json.Marshal(models.Metadata{"channel": "api", "ip_address": clientIP(r)})

	dbTx, err := ts.db.Begin()
	if err != nil {
		return 0, err
	}
	defer dbTx.Rollback()

	if err := ts.lockStudent(dbTx, nis); err != nil {
		return 0, err
	}

	result, err := dbTx.Exec(`
        INSERT INTO transactions
        (transaction_id, student_nis, kind, amount, description, actor, metadata, occurred_at, created_at)
        SELECT $1, $2, $3, $4, $5, $6, $7, $8, NOW()
        WHERE (
            SELECT COALESCE(SUM(CASE WHEN kind = 'INCOME' THEN amount ELSE -amount END), 0)
            FROM transactions WHERE student_nis = $2
        ) >= $4
    `, txID, nis, string(models.KindExpense), amount, req.Description, req.Actor, metadata, occurredAt)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if rowsAffected == 0 {
		var balance int64
		if err := dbTx.QueryRow(`
            SELECT COALESCE(SUM(CASE WHEN kind = 'INCOME' THEN amount ELSE -amount END), 0)
            FROM transactions WHERE student_nis = $1
        `, nis).Scan(&balance); err != nil {
			return 0, err
		}
		return 0, &ledger.InsufficientBalanceError{Balance: balance, Requested: amount}
	}

	return amount, dbTx.Commit()
}

func (ts *TransactionService) lockStudent(dbTx *sql.Tx, nis string) error {
	var id int
	err := dbTx.QueryRow(`SELECT id FROM students WHERE nis = $1 FOR UPDATE`, nis).Scan(&id)
	if err == sql.ErrNoRows {
		return errors.New("student not found")
	}
	return err
}

// ListTransactions returns a student's history, most recent first
// @Summary List a student's transactions
// @Description Get the transaction history for a student, ordered by recency
// @Tags transactions
// @Produce json
// @Param nis path string true "Student NIS"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis}/transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	transactions, err := ts.fetchTransactions(nis)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to fetch transactions for %s: %v", nis, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	sorted := ledger.SortByRecency(transactions)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": sorted,
		"count":        len(sorted),
	})
}

// GetSummary returns the derived account snapshot for a student
// @Summary Get account summary
// @Description Compute total income, total expense, and balance from the full history
// @Tags transactions
// @Produce json
// @Param nis path string true "Student NIS"
// @Success 200 {object} ledger.Summary
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis}/summary [get]
func (ts *TransactionService) GetSummary(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	if cached, ok := ts.cachedSummary(r.Context(), nis); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		json.NewEncoder(w).Encode(cached)
		return
	}

	if exists, err := ts.studentExists(nis); err != nil {
		SendErrorResponse(w, "Failed to compute summary", http.StatusInternalServerError, nil)
		return
	} else if !exists {
		SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		return
	}

	transactions, err := ts.fetchTransactions(nis)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to fetch transactions for %s: %v", nis, err)
		SendErrorResponse(w, "Failed to compute summary", http.StatusInternalServerError, nil)
		return
	}

	summary := ledger.Summarize(transactions)
	ts.cacheSummary(r.Context(), nis, summary)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// DeleteTransaction hard-deletes a ledger entry
// @Summary Delete a transaction
// @Description Permanently remove a transaction; entries cannot be edited, only deleted
// @Tags transactions
// @Produce json
// @Param txId path string true "Transaction ID"
// @Param actor query string false "User performing the delete"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{txId} [delete]
func (ts *TransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")
	actor := r.URL.Query().Get("actor")

	var nis string
	err := ts.db.QueryRow(`DELETE FROM transactions WHERE transaction_id = $1 RETURNING student_nis`, txID).Scan(&nis)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TRANSACTION] Failed to delete %s: %v", txID, err)
			SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	ts.invalidateSummary(r.Context(), nis)
	ts.audit.LogDelete(txID, nis, actor)
	log.Printf("[TRANSACTION] Deleted %s for student %s", txID, nis)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Transaction deleted"})
}

// GetRecentTransactions returns the school-wide recent activity feed
// @Summary Get recent transactions
// @Description Get the most recent transactions across all students
// @Tags transactions
// @Produce json
// @Param limit query int false "Number of transactions to return (default: 10, max: 100)"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/recent [get]
func (ts *TransactionService) GetRecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit := ts.config.RecentLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > ts.config.MaxRecentLimit {
			SendErrorResponse(w, fmt.Sprintf("limit must be between 1 and %d", ts.config.MaxRecentLimit), http.StatusBadRequest, nil)
			return
		}
		limit = l
	}

	rows, err := ts.db.Query(`
        SELECT id, transaction_id, student_nis, kind, amount, description, actor, occurred_at, created_at
        FROM transactions
        ORDER BY occurred_at DESC, id DESC
        LIMIT $1
    `, limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch recent transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions, err := scanTransactions(rows)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch recent transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// ExportTransactionsCSV streams a student's history as CSV
// @Summary Export transactions as CSV
// @Description Download a student's transaction history as a CSV file
// @Tags transactions
// @Produce text/csv
// @Param nis path string true "Student NIS"
// @Success 200 {string} string "CSV data"
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis}/transactions/export [get]
func (ts *TransactionService) ExportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	transactions, err := ts.fetchTransactions(nis)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	sorted := ledger.SortByRecency(transactions)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transaksi-%s.csv"`, nis))

	cw := csv.NewWriter(w)
	cw.Write([]string{"transaction_id", "nis", "jenis", "jumlah", "keterangan", "petugas", "tanggal"})
	for _, tx := range sorted {
		cw.Write([]string{
			tx.TransactionID,
			tx.StudentNIS,
			tx.Kind.Label(),
			strconv.FormatInt(tx.Amount, 10),
			tx.Description,
			tx.Actor,
			tx.OccurredAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
}

// Database helper functions

func (ts *TransactionService) studentExists(nis string) (bool, error) {
	var exists bool
	err := ts.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM students WHERE nis = $1)`, nis).Scan(&exists)
	return exists, err
}

// fetchTransactions returns the full history in insertion order, which is
// the tie-break order SortByRecency relies on.
func (ts *TransactionService) fetchTransactions(nis string) ([]models.Transaction, error) {
	rows, err := ts.db.Query(`
        SELECT id, transaction_id, student_nis, kind, amount, description, actor, occurred_at, created_at
        FROM transactions
        WHERE student_nis = $1
        ORDER BY id ASC
    `, nis)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		var kind string
		err := rows.Scan(
			&tx.ID, &tx.TransactionID, &tx.StudentNIS, &kind, &tx.Amount,
			&tx.Description, &tx.Actor, &tx.OccurredAt, &tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		tx.Kind = models.TransactionKind(kind)
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// Summary cache

func (ts *TransactionService) summaryKey(nis string) string {
	return fmt.Sprintf("summary:%s", nis)
}

func (ts *TransactionService) cachedSummary(ctx context.Context, nis string) (ledger.Summary, bool) {
	if ts.redis == nil {
		return ledger.Summary{}, false
	}

	data, err := ts.redis.Get(ctx, ts.summaryKey(nis)).Bytes()
	if err != nil {
		return ledger.Summary{}, false
	}

	var summary ledger.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return ledger.Summary{}, false
	}
	return summary, true
}

func (ts *TransactionService) cacheSummary(ctx context.Context, nis string, summary ledger.Summary) {
	if ts.redis == nil {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return
	}

	if err := ts.redis.Set(ctx, ts.summaryKey(nis), data, ts.config.SummaryCacheTTL).Err(); err != nil {
		log.Printf("[TRANSACTION] Failed to cache summary for %s: %v", nis, err)
	}
}

func (ts *TransactionService) invalidateSummary(ctx context.Context, nis string) {
	if ts.redis == nil {
		return
	}

	if err := ts.redis.Del(ctx, ts.summaryKey(nis)).Err(); err != nil {
		log.Printf("[TRANSACTION] Failed to invalidate summary for %s: %v", nis, err)
	}
}

func (ts *TransactionService) writeLedgerError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		SendErrorResponse(w, "Amount must be a positive whole number", http.StatusBadRequest, nil)
	case errors.As(err, &insufficient):
		SendErrorResponse(w, fmt.Sprintf("Withdrawal of %d exceeds the current balance of %d", insufficient.Requested, insufficient.Balance), http.StatusBadRequest, nil)
	default:
		log.Printf("[TRANSACTION] Failed to process entry: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.Split(forwarded, ",")[0]
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
