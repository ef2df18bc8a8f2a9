package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/i18n"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/state"
	"mapforge/pkg/game/store"
	"mapforge/pkg/game/verify"
)

const maxMessageSize = 1 << 20

// Options configures a Server
type Options struct {
	Grid          builder.Limits
	MaxOperations int
	Catalog       *i18n.Catalog
	Log           *slog.Logger

	// Verifier, if set, scores every finalized map before it is returned
	Verifier *verify.Verifier
}

// Server serves /ws for remote agents and a read-only map listing
type Server struct {
	store    store.Storage
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer wires a server to a store
func NewServer(st store.Storage, opts Options) *Server {
	if opts.Catalog == nil {
		opts.Catalog = i18n.MustLoad(i18n.DefaultLocale)
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.MaxOperations <= 0 {
		opts.MaxOperations = 60
	}
	return &Server{
		store: st,
		opts:  opts,
		upgrader: websocket.Upgrader{
			// Agents are not browsers; any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("GET /maps", s.listMaps)
	mux.HandleFunc("GET /maps/{id}", s.getMap)
	return mux
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.opts.Log.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) listMaps(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListArtifacts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (s *Server) getMap(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.LoadArtifact(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, a)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response", "err", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Log.Warn("failed to upgrade connection", "err", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)

	base := s.opts.Log.With("remote", ws.RemoteAddr().String())
	c := &client{server: s, ws: ws, base: base, log: base}
	c.log.Info("client connected")
	c.readLoop(r.Context())
	c.log.Info("client disconnected", "session_open", c.sess != nil)
}

// client is one connection and its current session
type client struct {
	server *Server
	ws     *websocket.Conn
	base   *slog.Logger
	log    *slog.Logger

	sess *state.Session
	d    *protocol.Dispatcher
}

func (c *client) readLoop(ctx context.Context) {
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("error reading message", "err", err)
			}
			return
		}
		if err := c.handle(ctx, message); err != nil {
			c.log.Warn("error writing message", "err", err)
			return
		}
	}
}

func (c *client) handle(ctx context.Context, message []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return c.fail(CodeBadMessage, "message is not valid JSON: "+err.Error())
	}

	switch msg.Type {
	case MessageTypeStart:
		c.sess = state.NewSession(msg.Prompt, 0)
		c.d = protocol.NewDispatcher(builder.New(c.server.opts.Grid), c.server.opts.Catalog)
		c.log = c.base.With("session", c.sess.ID)
		c.log.Info("session started", "prompt", msg.Prompt)
		return c.ws.WriteJSON(StartedMessage{Type: MessageTypeStarted, SessionID: c.sess.ID, Tools: protocol.Tools()})

	case MessageTypeStatus:
		if c.sess == nil {
			return c.fail(CodeNoSession, "send a start message first")
		}
		return c.ws.WriteJSON(StatusMessage{Type: MessageTypeStatus, Status: c.d.Builder().Status()})

	case MessageTypeCall:
		if c.sess == nil {
			return c.fail(CodeNoSession, "send a start message first")
		}
		if msg.Call == nil {
			return c.fail(CodeBadMessage, "call message without call")
		}
		return c.call(ctx, *msg.Call)

	default:
		return c.fail(CodeBadMessage, "unknown message type "+string(msg.Type))
	}
}

func (c *client) call(ctx context.Context, call protocol.Call) error {
	if c.sess.OpsUsed >= c.server.opts.MaxOperations {
		return c.fail(CodeBudget, "operation budget exhausted; start a new session")
	}
	res := c.d.Dispatch(call)
	c.sess.Record(call, res)
	c.log.Debug("operation applied", "op", call.Name, "ok", res.OK, "call_id", call.ID)

	out := ResultMessage{Type: MessageTypeResult, Result: res, OpsUsed: c.sess.OpsUsed}
	if call.Name == protocol.OpFinalize && res.OK {
		art, err := c.d.Builder().Artifact(c.sess.Prompt, "remote")
		if err != nil {
			return c.fail(CodeStoreFailed, err.Error())
		}
		if err := c.server.store.SaveArtifact(ctx, art); err != nil {
			c.log.Error("failed to save artifact", "err", err)
			return c.fail(CodeStoreFailed, err.Error())
		}
		out.Artifact = art
		if v := c.server.opts.Verifier; v != nil {
			vr, err := v.Verify(ctx, art, nil)
			if err != nil {
				c.log.Warn("verification failed", "err", err)
			} else {
				out.Verification = &vr
				if err := c.server.store.SaveVerification(ctx, vr); err != nil {
					c.log.Error("failed to save verification", "err", err)
				}
			}
		}
		c.log.Info("map stored", "artifact", art.ID, "connected", art.Connected)
	}
	return c.ws.WriteJSON(out)
}

func (c *client) fail(code, message string) error {
	return c.ws.WriteJSON(ErrorMessage{Type: MessageTypeError, Code: code, Message: message})
}
