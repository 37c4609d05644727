package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ReturnsSyncMessage announces a stored import batch. The worker recomputes
// the monthly series from the database; the message carries no trade data.
type ReturnsSyncMessage struct {
	ImportID  string    `json:"import_id"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReturnsSyncMessage(importID string, rows int) *ReturnsSyncMessage {
	return &ReturnsSyncMessage{
		ImportID:  importID,
		Rows:      rows,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReturnsSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReturnsSyncMessageFromJSON decodes a message body. A message without an
// import id is rejected.
func ReturnsSyncMessageFromJSON(data []byte) (*ReturnsSyncMessage, error) {
	var msg ReturnsSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ImportID == "" {
		return nil, errors.New("missing import_id")
	}
	return &msg, nil
}
