// Package server is the development server. It serves the output directory,
// injects a live reload client into HTML pages and pushes reload, stylesheet
// and error messages to connected browsers over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/afero"

	"github.com/conneroisu/sitekit/internal/build"
	"github.com/conneroisu/sitekit/internal/config"
	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
	"github.com/conneroisu/sitekit/internal/logging"
)

// Endpoints served next to the site.
const (
	prefix        = "/__sitekit"
	WebSocketPath = prefix + "/ws"
	ClientPath    = prefix + "/client.js"
	HealthPath    = prefix + "/health"
	StatusPath    = prefix + "/status"
)

const (
	shutdownWait   = 5 * time.Second
	readHeaderWait = 10 * time.Second
)

// Message types sent to the browser.
const (
	MessageReload       = "reload"
	MessageCSS          = "css"
	MessageBuildError   = "build_error"
	MessageBuildSuccess = "build_success"
)

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *DevServer
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusFunc reports task state for the status endpoint.
type StatusFunc func() interface{}

// Option configures a DevServer.
type Option func(*DevServer)

// WithErrors makes browsers that connect while a task is failing see the
// collector's errors right away.
func WithErrors(c *sitekiterrors.ErrorCollector) Option {
	return func(s *DevServer) { s.errors = c }
}

// WithStatus sets what the status endpoint reports under "tasks".
func WithStatus(fn StatusFunc) Option {
	return func(s *DevServer) { s.status = fn }
}

// DevServer serves the output directory with live reload.
type DevServer struct {
	config *config.Config
	fs     afero.Fs
	logger logging.Logger
	errors *sitekiterrors.ErrorCollector
	status StatusFunc
	files  http.Handler

	httpServer  *http.Server
	listener    net.Listener
	serverMutex sync.RWMutex
	ready       chan struct{}

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	hubRunning   atomic.Bool
	done         chan struct{}

	shutdownOnce sync.Once
	started      time.Time
}

// New creates a dev server for the output directory of cfg on fsys.
func New(fsys afero.Fs, cfg *config.Config, logger logging.Logger, opts ...Option) *DevServer {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	s := &DevServer{
		config:     cfg,
		fs:         fsys,
		logger:     logger.WithComponent("server"),
		files:      http.FileServer(afero.NewHttpFs(fsys).Dir(cfg.Paths.Dist)),
		ready:      make(chan struct{}),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler of the server.
func (s *DevServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	mux.HandleFunc(ClientPath, s.handleClient)
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.HandleFunc(StatusPath, s.handleStatus)
	mux.HandleFunc("/", s.handleStatic)
	return s.addMiddleware(mux)
}

// Start listens on the configured address and serves until ctx is done.
func (s *DevServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.Addr(), err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderWait,
	}
	s.serverMutex.Lock()
	s.httpServer = server
	s.listener = ln
	s.serverMutex.Unlock()

	s.hubRunning.Store(true)
	go s.runWebSocketHub(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	url := "http://" + s.Addr()
	close(s.ready)
	s.logger.Info(ctx, fmt.Sprintf("Serving files from '%s' at %s", s.config.Paths.Dist, url), "url", url)
	if s.config.Server.Open {
		go s.openBrowser(ctx, url)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// Ready is closed once the server is listening.
func (s *DevServer) Ready() <-chan struct{} { return s.ready }

// Addr returns the address the server listens on, or the configured address
// before Start.
func (s *DevServer) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Server.Addr()
}

// Notify turns a pipeline event into browser messages. It is meant to be
// registered as a build callback.
func (s *DevServer) Notify(ev build.Event) {
	now := time.Now()
	if ev.Kind == build.EventError {
		msg := UpdateMessage{Type: MessageBuildError, Target: ev.Task, Timestamp: now}
		if s.config.Development.ErrorOverlay {
			msg.Content = sitekiterrors.FormatErrorsForBrowser(s.currentErrors(ev.Errors))
		}
		s.Broadcast(msg)
		return
	}

	if ev.Recovered {
		msg := UpdateMessage{Type: MessageBuildSuccess, Target: ev.Task, Timestamp: now}
		// Other tasks may still be failing.
		if s.errors != nil && s.errors.HasErrors() && s.config.Development.ErrorOverlay {
			msg.Content = s.errors.ErrorOverlay()
		}
		s.Broadcast(msg)
	}
	if !s.config.Development.HotReload {
		return
	}
	if ev.Kind == build.EventCSS {
		s.Broadcast(UpdateMessage{Type: MessageCSS, Target: s.stylesheetURL(), Timestamp: now})
		return
	}
	s.Broadcast(UpdateMessage{Type: MessageReload, Target: ev.Task, Timestamp: now})
}

func (s *DevServer) currentErrors(fallback []*sitekiterrors.BuildError) []*sitekiterrors.BuildError {
	if s.errors != nil {
		if errs := s.errors.GetErrors(); len(errs) > 0 {
			return errs
		}
	}
	return fallback
}

// stylesheetURL is the URL path of the compiled stylesheet.
func (s *DevServer) stylesheetURL() string {
	out := path.Join(s.config.Paths.CSS.Output, s.config.Styles.OutputName())
	dist := path.Clean(s.config.Paths.Dist)
	if dist == "." {
		return "/" + out
	}
	if rel := strings.TrimPrefix(out, dist+"/"); rel != out {
		return "/" + rel
	}
	return "/" + s.config.Styles.OutputName()
}

// Broadcast sends msg to every connected browser. Messages sent before the
// server starts are dropped.
func (s *DevServer) Broadcast(msg UpdateMessage) {
	if !s.hubRunning.Load() {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "failed to marshal message", "type", msg.Type)
		return
	}
	select {
	case s.broadcast <- data:
	case <-s.done:
	}
}

// ClientCount returns the number of connected browsers.
func (s *DevServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *DevServer) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond)

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(ctx, err, "failed to open browser", "url", url)
	}
}

func (s *DevServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// Shutdown closes every websocket and stops the HTTP server.
func (s *DevServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server...")
		close(s.done)

		s.clientsMutex.Lock()
		conns := make([]*websocket.Conn, 0, len(s.clients))
		for conn, client := range s.clients {
			close(client.send)
			conns = append(conns, conn)
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		// Close without the handshake: a peer that never answers would
		// otherwise hold shutdown for the close timeout.
		for _, conn := range conns {
			conn.CloseNow()
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}
