package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump processes requests sequentially for this connection; room state
// is additionally guarded by the room's own lock, so concurrent
// connections interleave safely.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, s *session, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(s.peer.ID)).Msg("readPump closing")
		cancel()
		ctl.Rooms.Detach(s.roomID, s.sid)
		c.Close()
	}()

	if ctl.readLimit > 0 {
		c.conn.SetReadLimit(ctl.readLimit)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("peer", string(s.peer.ID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("peer", string(s.peer.ID)).Msg("readPump read error")
				return
			}
			ctl.handleRequest(ctx, s, data)
		}
	}
}
