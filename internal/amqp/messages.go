package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Ledger change actions
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// MessageType is set on every published delivery.
const MessageType = "ledger.changed"

// LedgerChangeMessage announces that one entry of a user's ledger was written or removed.
// Consumers fetch the current state from the store; the message carries no record body.
type LedgerChangeMessage struct {
	Resource  string    `json:"resource"`
	UserID    string    `json:"userId"`
	Key       string    `json:"key"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangeMessage creates a message stamped with the current time
func NewLedgerChangeMessage(resource, userID, key, action string) *LedgerChangeMessage {
	return &LedgerChangeMessage{
		Resource:  resource,
		UserID:    userID,
		Key:       key,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// Validate reports messages that cannot be attributed to a ledger entry.
func (m *LedgerChangeMessage) Validate() error {
	switch {
	case m.Resource == "":
		return fmt.Errorf("message has no resource")
	case m.UserID == "":
		return fmt.Errorf("message has no user id")
	case m.Key == "":
		return fmt.Errorf("message has no key")
	case m.Action != ActionUpsert && m.Action != ActionDelete:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangeMessageFromJSON decodes and validates a message
func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
