package amqp

import (
	"encoding/json"
	"time"
)

// Collection names carried in change notifications. They match the two
// persisted collections of the shared store.
const (
	CollectionAdmins       = "admins"
	CollectionTransactions = "transactions"
)

// ChangeMessage tells every other server process that a collection changed
// and its observers must re-read and publish a fresh full snapshot. Only
// the collection name travels; the store itself stays authoritative.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExportMessage queues one recorded transaction for the sheets export
// worker. The worker fetches the full row from the store by id.
type ExportMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(collection string) *ChangeMessage {
	return &ChangeMessage{Collection: collection, Timestamp: time.Now()}
}

func NewExportMessage(id string) *ExportMessage {
	return &ExportMessage{ID: id, Timestamp: time.Now()}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func (m *ExportMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func ExportMessageFromJSON(data []byte) (*ExportMessage, error) {
	var msg ExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
