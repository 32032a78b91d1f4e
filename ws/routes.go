package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-messenger/globals"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter sets up the websocket endpoint and the presence view.
func NewRouter(hub *Hub) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/chat", hub.websocketHandler).Methods(http.MethodGet)
	router.HandleFunc("/presence/{userId}", hub.presenceHandler).Methods(http.MethodGet)
	return router
}

// Handle incoming websockets
func (h *Hub) websocketHandler(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP request to Websocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	c := NewClient(h, conn)
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	globals.AppLogger.Debug("client registered", "conn", c.Id(), "remote", r.RemoteAddr)
	c.Add(1)
	go c.WriteLoop()
	c.ReadLoop()
	h.release(c)
	// after unregistering the send channel is closed, so the write loop exits
	c.Wait()
	globals.AppLogger.Debug("exiting ws handler", "conn", c.Id())
}

func (h *Hub) presenceHandler(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h.svc.Presence(userId))
	if err != nil {
		globals.AppLogger.Error("could not encode presence", "user", userId, "error", err)
	}
}
