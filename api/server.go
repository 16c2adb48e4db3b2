package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/arvidsson/benor-agreement/consensus"
	"github.com/arvidsson/benor-agreement/logging"
)

// errMissingField is returned by messageRequest.toPayload when type, round
// or val is absent from the request body (§4.4 validation rule).
var errMissingField = errors.New("missing required field")

// engine is the subset of *consensus.Engine the control surface drives.
// Declared as an interface so server_test.go can exercise the handlers
// against a fake without spinning up a real round loop.
type engine interface {
	Start(ctx context.Context) error
	Stop()
}

// Server is the HTTP control surface described in §4.4/§6: five routes
// wired to a single node's Engine, Inbox and NodeState. It mirrors the
// reference's mux.NewRouter + http.Server wiring (cmd/tealdbg/server.go in
// the retrieved pack), generalized from a debug frontend to the
// start/stop/message/getState/status contract this protocol needs.
type Server struct {
	cfg       consensus.Config
	state     *consensus.NodeState
	inbox     *consensus.Inbox
	engine    engine
	readiness *consensus.Readiness
	logger    logging.Logger

	router *mux.Router
	srv    *http.Server

	// baseCtx outlives any single /start request. The engine's round loop
	// must keep running after the handler that armed it returns, so it is
	// derived from this context rather than the request's — a Go request
	// context is canceled the instant the handler returns, which would
	// kill the loop before it ran a single round.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer builds the control surface for one node. addr is the listen
// address, e.g. "127.0.0.1:9000".
func NewServer(
	addr string,
	cfg consensus.Config,
	state *consensus.NodeState,
	inbox *consensus.Inbox,
	eng engine,
	readiness *consensus.Readiness,
	logger logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		state:      state,
		inbox:      inbox,
		engine:     eng,
		readiness:  readiness,
		logger:     logger.With("node_id", cfg.NodeID.String()),
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/message", s.handleMessage).Methods(http.MethodPost)
	router.HandleFunc("/start", s.handleStart).Methods(http.MethodGet)
	router.HandleFunc("/stop", s.handleStop).Methods(http.MethodGet)
	router.HandleFunc("/getState", s.handleGetState).Methods(http.MethodGet)
	s.router = router

	s.srv = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// ListenAndServe binds the listener, marks the node ready, then serves
// until the server is shut down. It matches §6's readiness contract: the
// node must call markNodeReady once its listener is bound, before any
// broadcast can leave this node.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("control surface: %w", err)
	}
	s.logger.Infof("control surface listening on %s", s.srv.Addr)
	if s.readiness != nil {
		s.readiness.MarkReady()
	}
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control surface: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener and cancels the base context
// the engine's round loop runs under.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	return s.srv.Shutdown(ctx)
}

// Handler exposes the underlying router for tests that want to drive it
// with httptest.NewServer instead of binding a real port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleStatus answers "live" for a participating node and "faulty" (with a
// 500) for one configured faulty, per §4.4/§6.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.IsFaulty {
		http.Error(w, "faulty", http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "live")
}

// handleMessage validates and tallies an inbound MsgPayload (§4.4). A
// faulty or killed node accepts the request (2xx) but performs no
// mutation, per the contract's no-op branch.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid message format", http.StatusBadRequest)
		return
	}
	payload, err := req.toPayload()
	if err != nil {
		http.Error(w, "Invalid message format", http.StatusBadRequest)
		return
	}

	if s.cfg.IsFaulty || s.state.Killed() {
		fmt.Fprint(w, "Message received")
		return
	}

	s.inbox.Prepare(payload.Round)
	s.inbox.Record(payload.Type, payload.Round, payload.Val)
	fmt.Fprint(w, "Message received")
}

// handleStart arms the engine (§4.4). A faulty or already-killed node
// refuses with a 500. The engine is started against the server's base
// context, not the request's — the request context is canceled the instant
// this handler returns, which would tear down the round loop before it ran.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(s.baseCtx); err != nil {
		http.Error(w, fmt.Sprintf("cannot start: %v", err), http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "Consensus started")
}

// handleStop disarms the engine and kills the node (§4.4). Always 2xx.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	fmt.Fprint(w, "Consensus stopped")
}

// handleGetState renders the three-branch snapshot shape from §6.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	snap := s.state.Snapshot()
	resp := newGetStateResponse(snap, s.cfg.ExceedingFaultLimit())
	writeJSON(w, http.StatusOK, resp)
}
