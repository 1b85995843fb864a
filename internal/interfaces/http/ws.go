package http

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

var syncPushInterval = 2 * time.Second

// HandleSyncStream push sync state snapshots to the client. The heartbeat
// wrapper drives the loop and owns the connection lifecycle
func (ph *ProgressHandler) HandleSyncStream(conn *websocket.Conn) error {
	if err := conn.WriteJSON(ph.coordinator.State(context.Background())); err != nil {
		return err
	}
	time.Sleep(syncPushInterval)
	return nil
}
