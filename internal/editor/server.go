package editor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/blocksdk/internal/auth"
	"github.com/danmuck/blocksdk/internal/channel/wschan"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/observability"
	"github.com/danmuck/blocksdk/internal/origin"
)

const (
	PathBlock   = "/block"
	PathHealth  = "/health"
	PathMetrics = "/metrics"
)

var ErrEditorOriginRequired = errors.New("editor: editor origin required")

// ServerConfig configures the reference editor endpoint.
type ServerConfig struct {
	Name       string
	ListenAddr string
	// Origin is the editor's own origin as blocks will see it.
	Origin string
	// BlockWhitelist holds host-suffix terms for block origins.
	BlockWhitelist []string
	AllowInsecure  bool
	UserData       json.RawMessage
	// Auth, when set, must accept the connection token before the upgrade.
	Auth auth.Validator
	// MaxMessageBytes bounds one websocket frame; zero keeps the transport default.
	MaxMessageBytes int64
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:           "editor",
		ListenAddr:     "127.0.0.1:9300",
		Origin:         "http://127.0.0.1:9300",
		BlockWhitelist: []string{"localhost", "127.0.0.1"},
		AllowInsecure:  true,
	}
}

// Connection describes one live block socket.
type Connection struct {
	ID          string
	BlockKey    string
	BlockOrigin string
	OpenedAt    time.Time
}

// Server serves blocks over websockets, one Host per socket, sharing one Store.
type Server struct {
	cfg     ServerConfig
	store   *Store
	policy  atomic.Pointer[origin.Validator]
	handler http.Handler
	started time.Time

	mu    sync.RWMutex
	conns map[string]*liveConn
}

type liveConn struct {
	info Connection
	host *Host
}

func NewServer(cfg ServerConfig) (*Server, error) {
	def := DefaultServerConfig()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = def.Name
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	own, err := origin.Canonical(cfg.Origin)
	if err != nil {
		return nil, errors.Join(ErrEditorOriginRequired, err)
	}
	cfg.Origin = own
	s := &Server{
		cfg:     cfg,
		store:   NewStore(cfg.UserData),
		started: time.Now(),
		conns:   make(map[string]*liveConn),
	}
	s.SetPolicy(cfg.BlockWhitelist, cfg.AllowInsecure)

	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.HandleFunc(PathBlock, s.handleBlock)
	mux.HandleFunc(PathHealth, s.handleHealth)
	mux.Handle(PathMetrics, promhttp.Handler())
	s.handler = observability.RequestLogger(log.Logger, cfg.Name, mux)
	return s, nil
}

// SetPolicy swaps the block origin policy; existing connections keep the block they accepted.
func (s *Server) SetPolicy(whitelist []string, allowInsecure bool) {
	v := origin.New(whitelist, allowInsecure)
	s.policy.Store(v)
	logs.Infof("editor.Server policy whitelist=%v insecure=%v", v.Whitelist(), allowInsecure)
}

func (s *Server) Policy() *origin.Validator {
	return s.policy.Load()
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Config() ServerConfig {
	return s.cfg
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Connections lists live block sockets.
func (s *Server) Connections() []Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c.info)
	}
	return out
}

// Notify sends an uncorrelated message to every accepted block.
func (s *Server) Notify(method string, payload any) int {
	s.mu.RLock()
	hosts := make([]*Host, 0, len(s.conns))
	for _, c := range s.conns {
		hosts = append(hosts, c.host)
	}
	s.mu.RUnlock()
	sent := 0
	for _, h := range hosts {
		if err := h.Notify(method, payload); err == nil {
			sent++
		}
	}
	return sent
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth != nil {
		if err := s.cfg.Auth.Validate(auth.FromRequest(r)); err != nil {
			logs.Warnf("editor.Server unauthorized remote=%q err=%v", r.RemoteAddr, err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	policy := s.Policy()
	peer, err := wschan.Accept(w, r, wschan.AcceptConfig{
		Origin:          s.cfg.Origin,
		CheckOrigin:     policy.IsTrusted,
		MaxMessageBytes: s.cfg.MaxMessageBytes,
	})
	if err != nil {
		return
	}
	id := uuid.NewString()
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		key = id
	}
	host, err := Attach(peer, HostConfig{
		BlockKey: key,
		Policy:   policy,
		Handlers: DefaultHandlers(s.store),
	})
	if err != nil {
		logs.Errf("editor.Server attach failed conn=%s err=%v", id, err)
		_ = peer.Close()
		return
	}

	s.mu.Lock()
	s.conns[id] = &liveConn{
		info: Connection{ID: id, BlockKey: key, BlockOrigin: peer.PeerOrigin(), OpenedAt: time.Now()},
		host: host,
	}
	s.mu.Unlock()
	observability.EditorConnectionOpened()
	logs.Infof("editor.Server block connected conn=%s key=%q origin=%q", id, key, peer.PeerOrigin())

	<-peer.Done()

	host.Close()
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	observability.EditorConnectionClosed()
	logs.Infof("editor.Server block disconnected conn=%s key=%q", id, key)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := len(s.conns)
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"service":     s.cfg.Name,
		"origin":      s.cfg.Origin,
		"uptime":      time.Since(s.started).String(),
		"connections": n,
	})
}

// Serve runs the HTTP server on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeAll()
		return nil
	}
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	logs.Warnf("editor.Server listening addr=%q origin=%q", ln.Addr().String(), s.cfg.Origin)
	return s.Serve(ctx, ln)
}

func (s *Server) closeAll() {
	s.mu.RLock()
	hosts := make([]*Host, 0, len(s.conns))
	for _, c := range s.conns {
		hosts = append(hosts, c.host)
	}
	s.mu.RUnlock()
	for _, h := range hosts {
		if p, ok := h.ch.(*wschan.Peer); ok {
			_ = p.Close()
		}
	}
}
