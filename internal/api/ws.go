package api

import (
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// HandleEventsWS streams a session's lifecycle events live over a websocket.
// The connection closes when the client goes away or the server shuts down.
func (h *Handlers) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if _, err := h.svc.Events(sessionID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "closed")

	ch, cancel := h.events.Subscribe(sessionID)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case evt, ok := <-ch:
			if !ok {
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c, evt); err != nil {
				return
			}
		}
	}
}
