package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	sendChannelSize = 16
	pingPeriod      = 54 * time.Second
	writeTimeout    = 10 * time.Second
)

type Client struct {
	ID    string
	rooms []string
	conn  *websocket.Conn
	send  chan Message
}

func newClient(id string, rooms []string, conn *websocket.Conn) *Client {
	return &Client{
		ID:    id,
		rooms: rooms,
		conn:  conn,
		send:  make(chan Message, sendChannelSize),
	}
}

// readPump lit (et ignore) les messages entrants pour traiter les trames de contrôle.
func (c *Client) readPump(ctx context.Context, logger *zap.Logger) {
	for {
		var msg Message
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Debug("realtime read failed", zap.String("user_id", c.ID), zap.Error(err))
			}
			return
		}
		logger.Debug("realtime message ignored", zap.String("user_id", c.ID), zap.String("type", msg.Type))
	}
}

func (c *Client) writePump(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			wcancel()
			if err != nil {
				logger.Debug("realtime write failed", zap.String("user_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			_ = c.conn.Close(websocket.StatusGoingAway, "")
			return
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
