package ws

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"techpaint/internal/models"

	"github.com/gorilla/websocket"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	// Largest inbound frame; a maximal message plus envelope overhead.
	maxFrameSize = 64 * 1024
)

type Authenticator interface {
	Authenticate(token string) (models.User, error)
}

type Server struct {
	auth     Authenticator
	hub      messageHub
	upgrader *websocket.Upgrader
}

func NewServer(auth Authenticator, hub *Hub) *Server {
	return &Server{
		auth: auth,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: SameOrigin,
		},
	}
}

// SameOrigin reports whether the request's Origin header, if any, names
// the host the request was sent to. Requests without Origin (CLI, curl)
// pass.
func SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// TokenFromRequest extracts the session token from the "token" header,
// the "token" cookie or the "token" query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if t := r.Header.Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Authenticate(TokenFromRequest(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c := NewConnection(s.hub, &gorillaConn{Conn: conn}, user)
	if err := c.Handle(r.Context()); err != nil && !isCloseError(err) {
		log.Printf("connection of user %s closed: %v", user.ID, err)
	}
}

func isCloseError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// gorillaConn adapts *websocket.Conn to wsConnection.
type gorillaConn struct {
	*websocket.Conn
}

func (g *gorillaConn) WriteJSON(v any) error {
	_ = g.SetWriteDeadline(time.Now().Add(writeTimeout))
	return g.Conn.WriteJSON(v)
}

func (g *gorillaConn) Ping() error {
	return g.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}
