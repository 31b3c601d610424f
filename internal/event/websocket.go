package event

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketSink feeds connected admin clients the live event stream.
type WebSocketSink struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{clients: map[*websocket.Conn]chan []byte{}}
}

func (s *WebSocketSink) Name() string { return "websocket" }

func (s *WebSocketSink) Consume(event domain.Event) {
	payload, err := encodeEvent(event)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, queue := range s.clients {
		select {
		case queue <- payload:
		default:
			// Slow client; drop the frame rather than stall the hub.
		}
	}
}

// HandleWebSocket upgrades the connection and streams events until the
// client goes away.
func (s *WebSocketSink) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	queue := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[conn] = queue
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// Reader: discard inbound frames, detect close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload := <-queue:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
