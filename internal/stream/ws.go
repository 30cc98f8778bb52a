package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kjannette/stonks-backend/internal/watchlist"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin policy is the API's CORS middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and writes each snapshot as a JSON text
// frame. Inbound frames are discarded; a read error ends the stream.
func (p *Poller) ServeWS(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(512)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = p.Run(ctx, userID, func(rows []watchlist.Row) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(rows)
	})
	if err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Int64("user", userID).Msg("websocket stream ended")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
