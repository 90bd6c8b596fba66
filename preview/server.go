package preview

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumen-rt/lumen/log"
)

//go:embed viewer.html
var viewerPage []byte

// A renderer that can be driven by the preview loop.
type Renderer interface {
	Controller

	RenderFrame() error
	Image() *image.RGBA
	Samples() uint32
	PendingChanges() bool
}

type LoopOptions struct {
	// Minimum time between published frames.
	FrameInterval time.Duration

	// Stop tracing once this many samples per pixel have been accumulated
	// (0 = never). Queued changes resume tracing.
	MaxSamples uint32

	// Poll interval while idle.
	IdleInterval time.Duration
}

// Get the default preview loop options.
func DefaultLoopOptions() LoopOptions {
	return LoopOptions{
		FrameInterval: 100 * time.Millisecond,
		IdleInterval:  50 * time.Millisecond,
	}
}

// A preview server streams PNG encoded frames to websocket clients and relays
// their JSON commands to a controller.
type Server struct {
	logger   log.Logger
	ctrl     Controller
	hub      *hub
	upgrader websocket.Upgrader
	encoder  png.Encoder
}

// Create a preview server that forwards client commands to ctrl.
func NewServer(ctrl Controller) *Server {
	return &Server{
		logger: log.New("preview"),
		ctrl:   ctrl,
		hub:    newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

// Get the http handler serving the viewer page and the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(viewerPage)
	})
	return mux
}

// Get the number of connected clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// Encode img as PNG and send it to all connected clients.
func (s *Server) PublishFrame(img image.Image) error {
	if s.hub.count() == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := s.encoder.Encode(&buf, img); err != nil {
		return err
	}
	s.hub.broadcast(message{kind: websocket.BinaryMessage, payload: buf.Bytes()})
	return nil
}

// Disconnect all clients.
func (s *Server) Close() {
	s.hub.closeAll()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warningf("upgrade: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan message, sendBufferSize), id: r.RemoteAddr}
	s.hub.register(c)
	s.logger.Infof("client %s connected", c.id)

	go c.writePump()
	go s.readPump(c)
}

// Read client commands until the connection drops.
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.unregister(c)
		c.conn.Close()
		s.logger.Infof("client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxCommandSize)
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warningf("client %s: read error: %v", c.id, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		if err = Dispatch(s.ctrl, payload); err != nil {
			s.logger.Warningf("client %s: %v", c.id, err)
			reply, _ := json.Marshal(commandError{Error: err.Error()})
			s.hub.sendTo(c, message{kind: websocket.TextMessage, payload: reply})
		}
	}
}

// Trace frames with r and publish them until ctx is cancelled.
func (s *Server) RenderLoop(ctx context.Context, r Renderer, opts LoopOptions) error {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultLoopOptions().IdleInterval
	}

	var lastPublish time.Time
	published := true
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if opts.MaxSamples != 0 && r.Samples() >= opts.MaxSamples && !r.PendingChanges() {
			// Make sure the converged frame reaches the clients
			if !published {
				if err := s.PublishFrame(r.Image()); err != nil {
					return err
				}
				published = true
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.IdleInterval):
			}
			continue
		}

		if err := r.RenderFrame(); err != nil {
			return err
		}
		published = false

		if time.Since(lastPublish) >= opts.FrameInterval {
			if err := s.PublishFrame(r.Image()); err != nil {
				return err
			}
			lastPublish = time.Now()
			published = true
		}
	}
}

// Serve the preview on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve the preview on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Noticef("preview server listening on http://%s", listener.Addr())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
