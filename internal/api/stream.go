package api

import (
	"time"

	"github.com/annel0/polyview/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// handlePlayerStream отдаёт обновления визардов игрока через websocket.
// Очередь игрока вычитывается раз в streamEvery; поток закрывается, когда
// игрок отключается или клиент закрывает соединение.
func (rs *RestServer) handlePlayerStream(c *gin.Context) {
	p, found := rs.playerParam(c)
	if !found {
		return
	}

	conn, err := rs.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	logging.Debug("📺 Поток обновлений игрока %s открыт", p.Name())

	// Читатель нужен только для обработки close/ping от клиента
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(rs.streamEvery)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		if _, online := rs.sessions.Get(p.ID()); !online {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "player left"),
				time.Now().Add(time.Second))
			return
		}

		updates := p.Drain()
		if len(updates) == 0 {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(describeUpdates(updates)); err != nil {
			logging.Debug("📺 Поток игрока %s закрыт: %v", p.Name(), err)
			return
		}
	}
}
