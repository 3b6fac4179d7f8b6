package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/elijahnyp/parking_controller/state"
	. "github.com/elijahnyp/parking_controller/util"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from the same box
	},
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Data interface{} `json:"data"`
	Type string      `json:"type"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
	hub  *WSHub
}

// WSHub maintains the set of active clients and broadcasts messages
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WSClient
	unregister chan *WSClient
	// last message broadcast, handed to clients as they join
	latest *WebSocketMessage
}

// NewHub creates a new WebSocket hub
func NewHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WebSocketMessage, 16),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the WebSocket hub
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if h.latest != nil {
				client.send <- *h.latest
			}
			Logger.Info().Msg("Client connected to WebSocket")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				Logger.Info().Msg("Client disconnected from WebSocket")
			}

		case message := <-h.broadcast:
			h.latest = &message
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastUpdate sends an update to all connected clients
func (h *WSHub) BroadcastUpdate(messageType string, data interface{}) {
	select {
	case h.broadcast <- WebSocketMessage{Type: messageType, Data: data}:
	default:
		// Channel is full, skip this update
	}
}

// Publish lets the hub receive snapshots from the dispatch loop.
func (h *WSHub) Publish(snap *state.Snapshot) {
	h.BroadcastUpdate("lot_status", snap)
}

// readPump pumps messages from the websocket connection to the hub
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *WSClient) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for message := range c.send {
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		Logger.Debug().Err(err).Msg("Error writing close message")
	}
}

// ServeWebSocket streams lot snapshots, starting with the latest one
func (c *controller) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan WebSocketMessage, 256),
		hub:  c.hub,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Error encoding response")
	}
}

// APIStatus returns the latest snapshot plus what the display shows.
func (c *controller) APIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Bad Request Method", http.StatusMethodNotAllowed)
		return
	}
	pattern, _, lit := c.display.State()
	writeJSON(w, http.StatusOK, struct {
		*state.Snapshot
		DisplayPattern uint8 `json:"display_pattern"`
		DisplayLit     bool  `json:"display_lit"`
	}{c.dispatcher.Snapshot(), pattern, lit})
}

// APIRequest is the web equivalent of pressing the button. Like the button it
// only raises the request flag; a request while one is pending is dropped.
func (c *controller) APIRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Bad Request Method", http.StatusMethodNotAllowed)
		return
	}
	if !c.flags.SignalRequest() {
		writeJSON(w, http.StatusConflict, map[string]bool{"accepted": false})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// DisplayImage draws the segment display as it currently is.
func (c *controller) DisplayImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := c.mirror.WritePNG(w); err != nil {
		Logger.Error().Msgf("Error writing display image: %v", err)
	}
}

const homePage = `<!DOCTYPE html>
<html><head><title>parking</title></head>
<body>
<img id="display" src="/display.png" alt="display">
<pre id="status"></pre>
<button onclick="fetch('/api/request',{method:'POST'})">find a space</button>
<script>
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = (e) => {
  document.getElementById('status').textContent = JSON.stringify(JSON.parse(e.data).data, null, 2);
};
setInterval(() => { document.getElementById('display').src = '/display.png?t=' + Date.now(); }, 250);
</script>
</body></html>
`

// HomeHandler serves the dashboard page
func HomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if _, err := io.WriteString(w, homePage); err != nil {
		Logger.Error().Msgf("Error writing response: %v", err)
	}
}

func (c *controller) routes(monitor *MonitorServer) {
	monitor.AddHandler("/", HomeHandler)
	monitor.AddHandler("/ws", c.ServeWebSocket)
	monitor.AddHandler("/api/status", c.APIStatus)
	monitor.AddHandler("/api/request", c.APIRequest)
	monitor.AddHandler("/display.png", c.DisplayImage)
}
