package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4096
)

// TokenVerifier authenticates a connection token. Token issuance lives
// outside the core; only verification is consumed here.
type TokenVerifier interface {
	Verify(token string) (*Principal, error)
}

// Server upgrades HTTP requests to websocket connections and bridges them
// onto the hub. Anonymous connections (no token) are accepted; room
// authorization then restricts them to public tracking rooms.
type Server struct {
	hub      *Hub
	verifier TokenVerifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewServer(hub *Hub, verifier TokenVerifier, logger *zap.Logger) *Server {
	return &Server{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checking is the reverse proxy's responsibility.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(zap.String("component", "realtime_ws")),
	}
}

// clientMessage is what connected clients may send.
type clientMessage struct {
	Action   string          `json:"action"` // join | leave | publish_location
	Room     string          `json:"room,omitempty"`
	Location *LocationUpdate `json:"location,omitempty"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var principal *Principal
	if token := r.URL.Query().Get("token"); token != "" {
		if s.verifier == nil {
			http.Error(w, "authentication not configured", http.StatusUnauthorized)
			return
		}
		p, err := s.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		principal = p
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := s.hub.Register(principal)
	go s.writePump(conn, client)
	go s.readPump(conn, client)
}

func (s *Server) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		client.Close()
		conn.Close()
	}()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.writeError(client, "malformed message")
			continue
		}
		s.handle(client, msg)
	}
}

func (s *Server) handle(client *Client, msg clientMessage) {
	switch msg.Action {
	case "join":
		room, err := ParseRoom(msg.Room)
		if err != nil {
			s.writeError(client, "invalid room key")
			return
		}
		if err := client.Join(context.Background(), room); err != nil {
			s.writeError(client, err.Error())
		}
	case "leave":
		if room, err := ParseRoom(msg.Room); err == nil {
			client.Leave(room)
		}
	case "publish_location":
		if msg.Location == nil {
			s.writeError(client, "missing location")
			return
		}
		if err := client.PublishLocation(context.Background(), *msg.Location); err != nil {
			s.writeError(client, err.Error())
		}
	default:
		s.writeError(client, "unknown action")
	}
}

// writeError queues the error on the client's send channel; the write
// pump is the connection's only writer.
func (s *Server) writeError(client *Client, reason string) {
	client.sendDirect("error", reason)
}

func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case b, ok := <-client.Receive():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
