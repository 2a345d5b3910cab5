// Package signal is the per-connection protocol adapter: it binds one
// websocket to one room and translates method-tagged requests into room
// and engine operations.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dterekhov/roomcast/internal/app"
	"github.com/dterekhov/roomcast/internal/config"
	"github.com/dterekhov/roomcast/internal/core"
	"github.com/dterekhov/roomcast/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Rooms        *app.Rooms
	readLimit    int64
	writeTimeout time.Duration
}

func NewController(rooms *app.Rooms, cfg *config.Config) *Controller {
	return &Controller{
		Rooms:        rooms,
		readLimit:    cfg.ReadLimit,
		writeTimeout: cfg.WriteTimeout,
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// session binds one connection to one room for its whole lifetime. The
// session id, not the peer id, is the membership key: reconnects and
// duplicate tabs of one client are separate members.
type session struct {
	sid    core.SessionID
	peer   *domain.Peer
	roomID domain.RoomID
	room   *core.Room
	sig    core.SignalConnection
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRoom upgrades the connection and binds it to the room named in the
// handshake query. The room id is fixed until disconnect.
func (ctl *Controller) HandleRoom(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Query("roomId"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing roomId"})
		return
	}
	pid := domain.PeerID(c.Query("peerId"))
	if pid == "" {
		pid = domain.PeerID(c.GetString("client_token"))
	}
	peer := domain.NewPeer(pid, c.Query("name"))

	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("peer", string(peer.ID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	sid := core.SessionID(uuid.NewString())
	room, err := ctl.Rooms.Attach(ctx, roomID, sid, conn)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("room attach failed")
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "room unavailable"),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}

	sess := &session{sid: sid, peer: peer, roomID: roomID, room: room, sig: conn}
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}
