// Package monitor publishes session progress over HTTP.
//
// `GET /api/state` returns the latest snapshot, `/events/{channel}` streams
// server-sent events (channels `state`, `phase` and `command`) and `/ws`
// streams every event over a websocket.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mastercactapus/grblstream/coord"
	"github.com/mastercactapus/grblstream/logger"
	"github.com/mastercactapus/grblstream/machine"
	"github.com/mastercactapus/grblstream/machine/grbl"
)

// clientQueue is the number of events buffered per websocket client; a
// client falling further behind is dropped.
const clientQueue = 64

// eventQueue is the number of events buffered for SSE delivery; events
// beyond it are discarded.
const eventQueue = 256

// StateView is the JSON form of the machine state.
type StateView struct {
	Phase   string      `json:"phase"`
	Status  string      `json:"status"`
	MPos    coord.Point `json:"mpos"`
	WPos    coord.Point `json:"wpos"`
	WCO     coord.Point `json:"wco"`
	Feed    float64     `json:"feed"`
	Spindle float64     `json:"spindle"`
	Tool    float64     `json:"tool"`
	Modal   string      `json:"modal"`
}

// CommandEvent reports progress of a single command.
type CommandEvent struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

// Event is a single published update.
type Event struct {
	Type    string        `json:"type"`
	State   *StateView    `json:"state,omitempty"`
	Phase   string        `json:"phase,omitempty"`
	Command *CommandEvent `json:"command,omitempty"`
}

type client struct {
	conn *websocket.Conn

	mx     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend queues data without blocking; false means the queue is full.
func (c *client) trySend(data []byte) bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mx.Lock()
	defer c.mx.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Server serves session progress. Publish methods may be called from any
// goroutine.
type Server struct {
	http.Handler

	log      logger.Logger
	sse      *sse.Server
	upgrader websocket.Upgrader

	clients *xsync.MapOf[uint64, *client]
	nextID  atomic.Uint64
	closed  atomic.Bool

	events chan sseEvent
	done   chan struct{}

	mx    sync.RWMutex
	state StateView
}

// New creates a Server.
func New(log logger.Logger) *Server {
	r := mux.NewRouter()
	s := &Server{
		Handler: r,
		log:     log,
		sse:     newSSE(),
		upgrader: websocket.Upgrader{
			// local monitoring page, any origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: xsync.NewMapOf[uint64, *client](),
		events:  make(chan sseEvent, eventQueue),
		done:    make(chan struct{}),
	}
	go s.pump()

	r.HandleFunc("/api/state", s.getState).Methods("GET")
	r.Handle("/events/{channel}", s.sse).Methods("GET")
	r.HandleFunc("/ws", s.serveWS)

	return s
}

func newSSE() *sse.Server {
	return sse.NewServer(&sse.Options{
		Logger: log.New(io.Discard, "", 0),
	})
}

// State returns the latest published state.
func (s *Server) State() StateView {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.state
}

func (s *Server) getState(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(s.State())
	if err != nil {
		s.log.Error("encode state", "error", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "remote", req.RemoteAddr, "error", err)
		return
	}

	id := s.nextID.Add(1)
	c := &client{conn: conn, send: make(chan []byte, clientQueue)}
	s.clients.Store(id, c)
	s.log.Debug("websocket connected", "remote", req.RemoteAddr, "id", id)

	// new clients start with the current state
	data, err := json.Marshal(Event{Type: "state", State: ptr(s.State())})
	if err == nil {
		c.trySend(data)
	}

	go s.writeLoop(id, c)
	go s.readLoop(id, c)
}

func ptr[T any](v T) *T { return &v }

func (s *Server) writeLoop(id uint64, c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		if err != nil {
			s.log.Debug("websocket write", "id", id, "error", err)
			s.drop(id, c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards anything the client sends, and notices it leaving.
func (s *Server) readLoop(id uint64, c *client) {
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			s.drop(id, c)
			return
		}
	}
}

func (s *Server) drop(id uint64, c *client) {
	s.clients.Delete(id)
	c.close()
}

// Clients is the number of connected websocket clients.
func (s *Server) Clients() int { return s.clients.Size() }

func (s *Server) publish(ev Event) {
	if s.closed.Load() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("marshal event", "type", ev.Type, "error", err)
		return
	}

	select {
	case s.events <- sseEvent{channel: "/events/" + ev.Type, data: string(data)}:
	default:
		s.log.Debug("event queue full, dropping", "type", ev.Type)
	}

	s.clients.Range(func(id uint64, c *client) bool {
		if !c.trySend(data) {
			s.log.Warn("websocket client too slow, dropping", "id", id)
			s.drop(id, c)
		}
		return true
	})
}

type sseEvent struct {
	channel string
	data    string
}

// pump delivers SSE events off the publishing goroutine, since a subscriber
// that stops reading blocks SendMessage.
func (s *Server) pump() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.sendSSE(ev)
		}
	}
}

func (s *Server) sendSSE(ev sseEvent) {
	defer func() {
		// the client went away mid-send
		if r := recover(); r != nil {
			s.log.Warn("sse send", "channel", ev.channel, "panic", r)
		}
	}()
	s.sse.SendMessage(ev.channel, sse.SimpleMessage(ev.data))
}

// PublishState records st as the latest state and sends it to subscribers.
func (s *Server) PublishState(st machine.State) {
	s.mx.Lock()
	s.state.Status = st.Status
	s.state.MPos, s.state.WPos, s.state.WCO = st.MPos, st.WPos, st.WCO
	s.state.Feed, s.state.Spindle, s.state.Tool = st.Feed, st.Spindle, st.Tool
	s.state.Modal = st.Modal.Words().String()
	view := s.state
	s.mx.Unlock()

	s.publish(Event{Type: "state", State: &view})
}

// PublishPhase records the session phase and sends it to subscribers.
func (s *Server) PublishPhase(phase string) {
	s.mx.Lock()
	s.state.Phase = phase
	s.mx.Unlock()

	s.publish(Event{Type: "phase", Phase: phase})
}

type commandObserver struct {
	s    *Server
	text string
}

func (o commandObserver) MarkSent() { o.MarkStatus("sent") }
func (o commandObserver) MarkStatus(status string) {
	o.s.publish(Event{Type: "command", Command: &CommandEvent{Text: o.text, Status: status}})
}

// Observer returns an observer publishing the progress of the command text.
func (s *Server) Observer(text string) grbl.Observer {
	return commandObserver{s: s, text: text}
}

// Close disconnects every subscriber. Later events are discarded.
func (s *Server) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	s.sse.Shutdown()
	s.clients.Range(func(id uint64, c *client) bool {
		s.drop(id, c)
		return true
	})
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("monitor listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return err
	}
	err = <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
