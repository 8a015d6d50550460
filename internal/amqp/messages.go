package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Op is the kind of write a ledger change records.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// LedgerChangedMessage announces a committed write. Year and Month name the
// period whose summary changed; both are zero for writes that affect every
// period (users, categories, suppliers). The worker recomputes from the
// store, so the message never carries row contents.
type LedgerChangedMessage struct {
	MessageID  uuid.UUID `json:"message_id"`
	Collection string    `json:"collection"`
	ID         int64     `json:"id"`
	Op         Op        `json:"op"`
	Year       int       `json:"year,omitempty"`
	Month      int       `json:"month,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(collection string, id int64, op Op, year, month int) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		MessageID:  uuid.New(),
		Collection: collection,
		ID:         id,
		Op:         op,
		Year:       year,
		Month:      month,
		Timestamp:  time.Now().UTC(),
	}
}

// Periodic reports whether the change is scoped to one month.
func (m *LedgerChangedMessage) Periodic() bool {
	return m.Year != 0 && m.Month != 0
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
