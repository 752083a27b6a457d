package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 64
)

func (s *DevServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	origin, ok := s.checkOrigin(r)
	if !ok {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{origin},
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}
	// Late joiners see what is broken now.
	if data := s.initialMessage(); data != nil {
		client.send <- data
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump(r.Context())
	client.readPump(r.Context())
}

func (s *DevServer) initialMessage() []byte {
	if s.errors == nil || !s.errors.HasErrors() {
		return nil
	}
	msg := UpdateMessage{Type: MessageBuildError, Timestamp: time.Now()}
	if s.config.Development.ErrorOverlay {
		msg.Content = s.errors.ErrorOverlay()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}

// checkOrigin validates the request origin and returns its host. Same-origin
// requests are accepted, as are loopback and configured hosts on the port
// the server listens on.
func (s *DevServer) checkOrigin(r *http.Request) (string, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return "", false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return "", false
	}
	if originURL.Host == r.Host {
		return originURL.Host, true
	}

	_, port, err := net.SplitHostPort(s.Addr())
	if err != nil || originURL.Port() != port {
		return "", false
	}
	switch originURL.Hostname() {
	case "localhost", "127.0.0.1", s.config.Server.Host:
		return originURL.Host, true
	}
	return "", false
}

func (s *DevServer) runWebSocketHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "client connected", "clients", clientCount)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
				conn.CloseNow()
			}
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "client disconnected", "clients", clientCount)

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var failedClients []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					failedClients = append(failedClients, conn)
				}
			}
			s.clientsMutex.RUnlock()

			if len(failedClients) > 0 {
				s.clientsMutex.Lock()
				for _, conn := range failedClients {
					if client, ok := s.clients[conn]; ok {
						delete(s.clients, conn)
						close(client.send)
						go conn.Close(websocket.StatusPolicyViolation, "client too slow")
					}
				}
				s.clientsMutex.Unlock()
			}
		}
	}
}

// readPump discards incoming messages until the connection fails, then
// unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.server.unregister <- c.conn:
		case <-c.server.done:
		}
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				c.server.logger.Debug(ctx, "websocket closed", "error", err.Error())
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
