package streaming

import (
	"encoding/json"
	"errors"
	"time"
)

type MessageType string

const (
	MessageTypePaymentFinalized MessageType = "payment_finalized"
)

// Message is the event published when a payer lands on the finalize page.
type Message struct {
	Type        MessageType `json:"type"`
	Handle      string      `json:"handle"`
	TxHash      string      `json:"tx_hash"`
	ChainID     int64       `json:"chain_id,omitempty"`
	TraceID     string      `json:"trace_id,omitempty"`
	FinalizedAt time.Time   `json:"finalized_at"`
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.Handle == "" {
		return nil, errors.New("handle is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.Handle == "" {
		return Message{}, errors.New("handle is missing")
	}
	return msg, nil
}
