package bridge

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/logging"
	"github.com/GriffinCanCode/Transit/internal/shared/id"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// Config contains bridge configuration.
type Config struct {
	// UID is the credential stamped on everything attached peers send.
	UID uint32
	// Compression enables s2 framing of the transaction stream.
	Compression bool
}

// Handler upgrades websocket connections into router channels. It
// implements http.Handler so it mounts on any mux.
type Handler struct {
	log      *logging.Logger
	router   *core.Router
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler creates the attach endpoint for a router.
func NewHandler(router *core.Router, cfg Config, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		log:    log.Named("bridge"),
		router: router,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// session is one attached peer: a websocket on the outside, a channel on
// the inside.
type session struct {
	h     *Handler
	id    string
	conn  *websocket.Conn
	ch    *core.Channel
	codec codec

	writeMu sync.Mutex

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	handle core.Handle
	link   *core.DeathLink
}

// ServeHTTP handles the websocket upgrade and runs the session until the
// peer disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, err := h.router.Open(h.cfg.UID)
	if err != nil {
		h.log.Error("channel open for bridge peer failed", zap.Error(err))
		return
	}
	defer ch.Close()

	s := &session{
		h:       h,
		id:      id.NewSessionID(),
		conn:    conn,
		ch:      ch,
		codec:   codec{compress: h.cfg.Compression},
		watches: make(map[string]*watch),
	}

	h.router.Metrics().BridgeSessions.Inc()
	defer h.router.Metrics().BridgeSessions.Dec()
	h.log.Info("peer attached",
		zap.String("session", s.id),
		zap.Uint32("pid", ch.PID()),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	defer h.log.Info("peer detached", zap.String("session", s.id))

	if err := s.sendControl(controlMsg{
		Type:        msgHello,
		Session:     s.id,
		UID:         ch.UID(),
		PID:         ch.PID(),
		Compression: h.cfg.Compression,
	}); err != nil {
		return
	}

	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			if err := s.handleTxn(frame); err != nil {
				return
			}
		case websocket.TextMessage:
			if err := s.handleControl(frame); err != nil {
				return
			}
		}
	}
}

// handleTxn relays one transaction frame into the router and, for
// synchronous calls, sends the paired reply frame back.
func (s *session) handleTxn(frame []byte) error {
	txn, err := s.codec.decode(frame)
	if err != nil {
		return s.sendControl(controlMsg{Type: msgError, Message: err.Error()})
	}

	data := wire.LoadWriter(txn.Payload, txn.Handles)
	rep, err := s.ch.Transact(core.Handle(txn.Target), txn.Code, data, txn.Flags)
	if txn.Flags.Oneway() {
		return nil
	}

	reply := &wire.Transaction{
		Target: txn.Target,
		Code:   txn.Code,
		Status: wire.StatusOK,
	}
	if err != nil {
		reply.Status, reply.Payload = core.ReplyFromError(err)
	} else {
		reply.Payload = rep.Payload()
		reply.Handles = rep.Handles()
	}
	return s.sendFrame(reply)
}

func (s *session) handleControl(frame []byte) error {
	msg, err := parseControl(frame)
	if err != nil {
		return s.sendControl(controlMsg{Type: msgError, Message: err.Error()})
	}
	switch msg.Type {
	case msgPing:
		return s.sendControl(controlMsg{Type: msgPong})
	case msgLink:
		return s.link(core.Handle(msg.Handle))
	case msgUnlink:
		return s.unlink(msg.Watch)
	default:
		return s.sendControl(controlMsg{Type: msgError, Message: "unknown control type"})
	}
}

// link registers a death watch on behalf of the peer and pushes a death
// frame when it fires.
func (s *session) link(h core.Handle) error {
	token := uuid.NewString()
	link, err := s.ch.LinkToDeath(h, core.DeathRecipientFunc(func(dead core.Handle) {
		s.mu.Lock()
		delete(s.watches, token)
		s.mu.Unlock()
		_ = s.sendControl(controlMsg{Type: msgDeath, Watch: token, Handle: uint32(dead)})
	}))
	if err != nil {
		return s.sendControl(controlMsg{Type: msgError, Handle: uint32(h), Message: err.Error()})
	}
	s.mu.Lock()
	s.watches[token] = &watch{handle: h, link: link}
	s.mu.Unlock()
	return s.sendControl(controlMsg{Type: msgLinked, Watch: token, Handle: uint32(h)})
}

func (s *session) unlink(token string) error {
	s.mu.Lock()
	w, ok := s.watches[token]
	delete(s.watches, token)
	s.mu.Unlock()
	if ok {
		s.ch.UnlinkToDeath(w.link)
	}
	return s.sendControl(controlMsg{Type: msgUnlinked, Watch: token})
}

func (s *session) sendFrame(txn *wire.Transaction) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, s.codec.encode(txn))
}

func (s *session) sendControl(msg controlMsg) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}
