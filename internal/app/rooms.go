// Package app orchestrates room lifecycle for the protocol adapters.
package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dterekhov/roomcast/internal/core"
	"github.com/dterekhov/roomcast/internal/domain"
)

// Rooms is the only entry point the signaling adapter uses; it hides the
// store behind attach/detach semantics tied to connection lifetime.
type Rooms struct {
	store *core.Store
}

func NewRooms(store *core.Store) *Rooms {
	return &Rooms{store: store}
}

// Attach resolves or creates the room and registers the session as a
// member, atomically with respect to room teardown. The room creation
// failure (engine-level) propagates to the caller and no membership is
// recorded.
func (s *Rooms) Attach(ctx context.Context, id domain.RoomID, sid core.SessionID, conn core.SignalConnection) (*core.Room, error) {
	return s.store.Attach(ctx, id, sid, conn)
}

// Detach removes the member and tears the room down once the last
// participant is gone.
func (s *Rooms) Detach(id domain.RoomID, sid core.SessionID) {
	room, ok := s.store.Get(id)
	if !ok {
		return
	}
	if remaining := room.RemoveMember(sid); remaining > 0 {
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("remaining", remaining).Msg("member detached")
		return
	}
	s.store.DeleteIfEmpty(id)
}

func (s *Rooms) Get(id domain.RoomID) (*core.Room, bool) {
	return s.store.Get(id)
}

func (s *Rooms) Snapshot() []core.RoomInfo {
	return s.store.List()
}
