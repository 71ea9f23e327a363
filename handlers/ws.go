package handlers

import (
	"bytes"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const statusPollInterval = 500 * time.Millisecond

// StreamWorkflowStatus upgrades to a websocket and pushes the run's status
// snapshot whenever it changes, closing once the run leaves the live set.
func (h *Handler) StreamWorkflowStatus(c *gin.Context) {
	runID := c.Param("runId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed for run %s: %v", runID, err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	var last []byte
	for {
		data, err := h.registry.Status(c.Request.Context(), runID)
		if err != nil {
			log.Printf("[WS] status read failed for run %s: %v", runID, err)
			return
		}
		if data == nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run not found"))
			return
		}

		if !bytes.Equal(data, last) {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			last = data
		}

		// Once the run is no longer live the snapshot is final; push it and
		// close.
		active := false
		for _, id := range h.registry.ActiveRuns() {
			if id == runID {
				active = true
				break
			}
		}
		if !active {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"))
			return
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
