// Package domain contains entity meta-data without logic.
package domain

import "github.com/google/uuid"

const MaxPeerNameLen = 36

type PeerID string

type Peer struct {
	ID   PeerID `json:"id"`
	Name string `json:"name,omitempty"`
}

// NewPeer keeps construction in one place: a missing id is generated,
// an oversized name is truncated instead of rejected.
func NewPeer(id PeerID, name string) *Peer {
	if id == "" {
		id = PeerID(uuid.NewString())
	}
	if len(name) > MaxPeerNameLen {
		name = name[:MaxPeerNameLen]
	}
	return &Peer{ID: id, Name: name}
}
