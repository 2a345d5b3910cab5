package core

import (
	"github.com/dterekhov/roomcast/internal/domain"
	"github.com/dterekhov/roomcast/internal/media"
)

// Frame is a raw outbound payload (already-encoded JSON).
type Frame []byte

// SessionID identifies one connection. Membership is keyed by it, not by
// peer id: two tabs of one browser are two members.
type SessionID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}

// ProducerInfo is a read-only view of a registered producer.
type ProducerInfo struct {
	ID   string     `json:"id"`
	Kind media.Kind `json:"kind"`
}

type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	Members   int           `json:"members"`
	Producers int           `json:"producers"`
}
