package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dterekhov/roomcast/internal/domain"
	"github.com/dterekhov/roomcast/internal/media"
)

// Store is the sole authority on the roomID -> Room mapping.
type Store struct {
	engine media.Engine
	codecs []media.CodecCapability

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewStore(engine media.Engine, codecs []media.CodecCapability) *Store {
	return &Store{
		engine: engine,
		codecs: codecs,
		rooms:  make(map[domain.RoomID]*Room),
	}
}

// GetOrCreate is a single atomic check-and-insert: the router is allocated
// under the store lock, so two racing first connections can never end up
// with two routers for one room id.
func (s *Store) GetOrCreate(ctx context.Context, id domain.RoomID) (*Room, error) {
	s.mu.RLock()
	room, ok := s.rooms[id]
	s.mu.RUnlock()
	if ok {
		return room, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(ctx, id)
}

// Attach is get-or-create plus membership registration under one store
// lock. Holding the lock across AddMember keeps DeleteIfEmpty from
// observing the zero-member window and tearing the room down between
// lookup and registration.
func (s *Store) Attach(ctx context.Context, id domain.RoomID, sid SessionID, conn SignalConnection) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.getOrCreateLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	room.AddMember(sid, conn)
	return room, nil
}

func (s *Store) getOrCreateLocked(ctx context.Context, id domain.RoomID) (*Room, error) {
	if room, ok := s.rooms[id]; ok {
		return room, nil
	}
	router, err := s.engine.CreateRouter(ctx, s.codecs)
	if err != nil {
		return nil, fmt.Errorf("create router for room %s: %w", id, err)
	}
	room := NewRoom(id, router)
	s.rooms[id] = room
	log.Info().Str("module", "core.store").Str("room", string(id)).Str("router", router.ID()).Msg("room created")
	return room, nil
}

func (s *Store) Get(id domain.RoomID) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	return room, ok
}

// Delete removes the mapping and closes the room's router, releasing every
// transport, producer and consumer scoped to it. Idempotent.
func (s *Store) Delete(id domain.RoomID) {
	s.mu.Lock()
	room, ok := s.rooms[id]
	delete(s.rooms, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	room.Router().Close()
	log.Info().Str("module", "core.store").Str("room", string(id)).Msg("room deleted")
}

// DeleteIfEmpty deletes the room only when no member is attached, so a
// late disconnect cannot tear the room down under remaining participants.
func (s *Store) DeleteIfEmpty(id domain.RoomID) bool {
	s.mu.Lock()
	room, ok := s.rooms[id]
	if !ok || room.MemberCount() > 0 {
		s.mu.Unlock()
		return false
	}
	delete(s.rooms, id)
	s.mu.Unlock()
	room.Router().Close()
	log.Info().Str("module", "core.store").Str("room", string(id)).Msg("empty room deleted")
	return true
}

func (s *Store) List() []RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.Info())
	}
	return out
}
