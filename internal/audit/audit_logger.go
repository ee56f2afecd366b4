package audit

import (
	"encoding/json"
	"log"
	"time"
)

// AuditEvent is one line of the savings-book audit trail. Every write to a
// student ledger (deposit, withdrawal, delete) produces exactly one event.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	StudentNIS    string    `json:"nis"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// LogEntry records a successful deposit or withdrawal.
func (a *AuditLogger) LogEntry(transactionID, nis, kind string, amount int64, actor string) {
	event := AuditEvent{
		Timestamp:     time.Now(),
		EventType:     kind,
		TransactionID: transactionID,
		StudentNIS:    nis,
		Amount:        amount,
		Status:        "SUCCESS",
		Details:       map[string]string{"actor": actor},
	}
	a.log(event)
}

// LogDelete records a hard delete of a ledger entry.
func (a *AuditLogger) LogDelete(transactionID, nis, actor string) {
	event := AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "DELETE",
		TransactionID: transactionID,
		StudentNIS:    nis,
		Status:        "SUCCESS",
		Details:       map[string]string{"actor": actor},
	}
	a.log(event)
}

// LogError records a rejected or failed write.
func (a *AuditLogger) LogError(transactionID, nis string, err error) {
	event := AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		StudentNIS:    nis,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
