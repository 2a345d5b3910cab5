package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dterekhov/roomcast/internal/domain"
	"github.com/dterekhov/roomcast/internal/media"
)

// Room is one communication session: a single router plus the resource
// maps scoped to it. All maps are guarded by one RWMutex; engine calls
// never happen under the lock.
type Room struct {
	ID     domain.RoomID
	router media.Router

	mu         sync.RWMutex
	members    map[SessionID]SignalConnection
	transports map[string]media.Transport
	producers  map[string]media.Producer
	consumers  map[string]media.Consumer
}

func NewRoom(id domain.RoomID, router media.Router) *Room {
	return &Room{
		ID:         id,
		router:     router,
		members:    make(map[SessionID]SignalConnection),
		transports: make(map[string]media.Transport),
		producers:  make(map[string]media.Producer),
		consumers:  make(map[string]media.Consumer),
	}
}

// Router is immutable once the room is built.
func (r *Room) Router() media.Router { return r.router }

func (r *Room) AddMember(sid SessionID, conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[sid] = conn
	log.Info().Str("module", "core.room").Str("room", string(r.ID)).Str("sid", string(sid)).Msg("member added")
}

// RemoveMember returns the member count after removal.
func (r *Room) RemoveMember(sid SessionID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.ID)).Str("sid", string(sid)).Msg("member removed")
	return len(r.members)
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast fans a frame out to every member except the sender.
func (r *Room) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, conn := range r.members {
		if sid == from {
			continue
		}
		if err := conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Room) AddTransport(t media.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.ID()] = t
}

func (r *Room) Transport(id string) (media.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[id]
	return t, ok
}

func (r *Room) AddProducer(p media.Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.ID()] = p
}

// Producers returns a stable snapshot for the existingProducers reply.
func (r *Room) Producers() []ProducerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProducerInfo, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, ProducerInfo{ID: p.ID(), Kind: p.Kind()})
	}
	return out
}

func (r *Room) AddConsumer(c media.Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers[c.ID()] = c
}

func (r *Room) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{
		ID:        r.ID,
		Members:   len(r.members),
		Producers: len(r.producers),
	}
}
