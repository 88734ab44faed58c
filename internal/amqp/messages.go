package amqp

import (
	"encoding/json"
	"time"
)

// Causes for a balance event. The worker logs them; reconciliation itself
// only needs the user ID.
const (
	CauseTransaction  = "transaction"
	CauseDebtResolved = "debt_resolved"
	CauseBalanceEdit  = "balance_edit"
)

// BalanceEventMessage tells the worker that a user's balance changed.
// It carries only the user ID and the cause; the worker recomputes the
// balance from the ledger rather than trusting any value on the wire.
type BalanceEventMessage struct {
	UserID    int64     `json:"user_id"`
	Cause     string    `json:"cause"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBalanceEventMessage creates an event for the given user and cause.
func NewBalanceEventMessage(userID int64, cause string) *BalanceEventMessage {
	return &BalanceEventMessage{
		UserID:    userID,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BalanceEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BalanceEventMessageFromJSON creates a message from JSON bytes
func BalanceEventMessageFromJSON(data []byte) (*BalanceEventMessage, error) {
	var msg BalanceEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
