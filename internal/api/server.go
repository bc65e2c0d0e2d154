package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/history"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
	"github.com/WilsonWong800686/yys-autommation/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

// ErrNotStarted is returned by HealthCheck before Start.
var ErrNotStarted = errors.New("api: server not started")

// Controller is the part of the fleet coordinator the panel drives.
type Controller interface {
	Status() fleet.Status
	Submit(cmd fleet.Command) error
}

// FrameSource renders the last frame kept for a device.
type FrameSource interface {
	WritePNG(w io.Writer, key string) error
}

// Deps are the collaborators of the control panel. Logger and Fleet are
// required; without History or Frames their endpoints answer 503.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Fleet   Controller
	History history.Repository
	Frames  FrameSource

	// Hub is shared with the telemetry fan-out. When nil, Start creates
	// one that only carries status snapshots.
	Hub     *Hub
	Version string
}

// Server is the local control panel: REST endpoints, the page and the
// live WebSocket feed.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	fleet     Controller
	history   history.Repository
	frames    FrameSource
	version   string
	startedAt time.Time

	hub      *Hub
	http     *http.Server
	listener net.Listener
	stopHub  context.CancelFunc
}

// New validates deps and builds an unstarted server.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Fleet == nil:
		return nil, errors.New("api: fleet controller is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		fleet:     deps.Fleet,
		history:   deps.History,
		frames:    deps.Frames,
		version:   deps.Version,
		startedAt: time.Now(),
	}
	if deps.Hub != nil {
		s.attachHub(deps.Hub)
	}
	return s, nil
}

// Start binds the listen address and serves in the background until Close.
//
// Binding happens before Start returns, so a port already in use is
// reported here rather than in the log.
//
// Parameters:
//   - ctx: parent of the hub goroutine when the server owns its hub
//
// Returns:
//   - error: bind failure
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	if s.hub == nil {
		hubCtx, cancel := context.WithCancel(ctx)
		s.stopHub = cancel
		s.attachHub(NewHub(s.wsCfg, s.logger))
		go s.hub.Run(hubCtx)
	}

	read := seconds(s.cfg.Timeouts.Read)
	s.http = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       seconds(s.cfg.Timeouts.Idle),
	}

	s.logger.Info("control panel listening", "address", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control panel stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// attachHub makes h the server's hub and feeds it the fleet status as the
// status channel snapshot.
func (s *Server) attachHub(h *Hub) {
	h.SetSnapshot(telemetry.ChannelStatus, func() any { return s.fleet.Status() })
	s.hub = h
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub { return s.hub }

// Close drains in-flight requests for up to shutdownGrace, then drops the
// remaining connections. Safe before Start.
func (s *Server) Close() error {
	if s.http == nil {
		return nil
	}
	if s.stopHub != nil {
		s.stopHub()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("control panel shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		s.http.Close()
		return fmt.Errorf("draining control panel: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is serving.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.http == nil {
		return ErrNotStarted
	}
	return nil
}
