package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hpungsan/flowgen/internal/preview"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// editMessage is the incoming WebSocket message format.
type editMessage struct {
	Code string `json:"code"`
}

// previewMessage is the outgoing WebSocket message format.
type previewMessage struct {
	preview.Snapshot
	ImageURL string `json:"image_url,omitempty"`
}

func (h *Handlers) quietPeriod() time.Duration {
	if h.env.Config == nil {
		return preview.DefaultQuietPeriod
	}
	return h.env.Config.QuietPeriod()
}

// HandlePlaygroundSocket handles GET /playground/ws. Each connection owns a
// preview controller; edits arrive as {"code": ...} and every state change
// is pushed back as a snapshot.
func (h *Handlers) HandlePlaygroundSocket(w http.ResponseWriter, r *http.Request) {
	if h.preview == nil {
		http.Error(w, "preview service not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctrl := preview.NewController(preview.Config{
		Renderer:    h.preview,
		Store:       h.store,
		QuietPeriod: h.quietPeriod(),
		Logger:      h.logger.With("session", r.RemoteAddr),
	})
	snaps, unsubscribe := ctrl.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range snaps {
			msg := previewMessage{Snapshot: snap}
			if snap.Image != "" {
				msg.ImageURL = "/blobs/" + string(snap.Image)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			break
		}
		var msg editMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed edit", "error", err)
			continue
		}
		ctrl.Edit(msg.Code)
	}

	unsubscribe()
	ctrl.Close()
	<-done
}
