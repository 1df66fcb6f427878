package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind names what happened to the ledger.
type Kind string

const (
	TransactionCreated Kind = "transaction.created"
	TransactionUpdated Kind = "transaction.updated"
	TransactionDeleted Kind = "transaction.deleted"
	ReceiptImported    Kind = "receipt.imported"
)

// Event is a lightweight change notification. Consumers that need the
// full transaction fetch it from the backend; the event only says which
// month of which user changed.
type Event struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	Count         int       `json:"count,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent stamps a change notification with an id and the current time.
func NewEvent(kind Kind, userID, transactionID string, year, month int) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		UserID:        userID,
		TransactionID: transactionID,
		Year:          year,
		Month:         month,
		Timestamp:     time.Now(),
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
