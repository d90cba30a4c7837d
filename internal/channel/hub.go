// Package channel carries protocol messages between the processes of one
// shared session.
//
// THE SHAPE:
// The host runs a Hub and every guest dials it with a Client:
//
//	guest A ──ws──┐
//	              ├── Hub (host) ── deliver ──► host engine
//	guest B ──ws──┘
//
// A frame read from one guest is relayed to every other guest and delivered
// to the host's engine. Frames from the host engine (Hub.Send) go to every
// guest. Nothing orders frames across senders; frames from one sender keep
// their order because each connection has one reader that relays and
// delivers before reading the next frame.
//
// BACKPRESSURE:
// Each peer has a bounded outbound queue drained by its own writer
// goroutine. A peer whose queue is full is disconnected. Delivery is
// best-effort, nothing is retried.
//
// SENDER STAMPING:
// The hub overwrites Message.Sender with the connection id. Whatever a
// client puts there is ignored.
package channel

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sakif/portfolio/internal/auth"
	"github.com/sakif/portfolio/internal/protocol"
)

// HostSender is the Sender stamped on frames the host itself sends.
const HostSender = protocol.HostSender

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// An announce carries a base64 preview, so frames can be large.
	maxFrameSize = 4 << 20
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("channel: closed")
	// ErrQueueFull is returned when a client's outbound queue is full.
	ErrQueueFull = errors.New("channel: send queue full")
)

// HubOptions tune the hub. Zero values pick the defaults.
type HubOptions struct {
	// QueueSize is the per-peer outbound queue length. Default 256.
	QueueSize int
	// RatePerSecond and Burst bound inbound frames per connection. Frames
	// over the limit are dropped. Default 50/s, burst 200.
	RatePerSecond float64
	Burst         int
}

func (o HubOptions) withDefaults() HubOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 50
	}
	if o.Burst <= 0 {
		o.Burst = 200
	}
	return o
}

// Hub is the host side of the channel. It implements http.Handler for the
// websocket upgrade and engine.Transport for the host's outbound frames.
type Hub struct {
	deliver  func(protocol.Message)
	opts     HubOptions
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.Mutex
	peers  map[string]*peer
	closed bool
	wg     sync.WaitGroup
}

type peer struct {
	id      string
	nick    string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	done    chan struct{}
	once    sync.Once
}

// close says goodbye, stops the writer and closes the socket. Safe to call
// more than once and from any goroutine.
func (p *peer) close() {
	p.once.Do(func() {
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		close(p.done)
		_ = p.conn.Close()
	})
}

// NewHub creates a hub that hands every inbound frame to deliver. deliver is
// called from connection goroutines, one call at a time per connection; the
// app passes a function that posts onto the event loop.
func NewHub(deliver func(protocol.Message), opts HubOptions, logger *slog.Logger) *Hub {
	return &Hub{
		deliver: deliver,
		opts:    opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Admission is the invite token, not the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		peers:  make(map[string]*peer),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// The nickname comes from the invite token checked by auth.RequireInvite.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nick, _ := auth.NickFromContext(r.Context())

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "session closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	p := &peer{
		id:      uuid.NewString(),
		nick:    nick,
		conn:    conn,
		send:    make(chan []byte, h.opts.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(h.opts.RatePerSecond), h.opts.Burst),
		done:    make(chan struct{}),
	}
	if !h.register(p) {
		_ = conn.Close()
		return
	}

	h.logger.Info("peer connected",
		slog.String("peer", p.id),
		slog.String("nick", nick),
		slog.String("remote", r.RemoteAddr),
	)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writePump(p)
	}()
	h.readPump(p)
}

func (h *Hub) register(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p.id] = p
	return true
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p.id]
	delete(h.peers, p.id)
	h.mu.Unlock()
	p.close()
	if ok {
		h.logger.Info("peer disconnected", slog.String("peer", p.id), slog.String("nick", p.nick))
	}
}

// readPump reads frames in order, relays each to the other peers and then
// delivers it. Returning ends the connection.
func (h *Hub) readPump(p *peer) {
	defer h.unregister(p)

	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("peer read failed", slog.String("peer", p.id), slog.String("error", err.Error()))
			}
			return
		}

		if !p.limiter.Allow() {
			h.logger.Warn("peer over rate limit, frame dropped", slog.String("peer", p.id))
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("undecodable frame dropped", slog.String("peer", p.id), slog.String("error", err.Error()))
			continue
		}
		msg.Sender = p.id

		out, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		h.broadcast(p.id, out)
		h.deliver(msg)
	}
}

// writePump drains the peer's queue and keeps the connection alive with pings.
func (h *Hub) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()

	for {
		select {
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("peer write failed", slog.String("peer", p.id), slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

// broadcast queues data for every peer except the one with id except.
// A peer whose queue is full is dropped.
func (h *Hub) broadcast(except string, data []byte) {
	var slow []*peer

	h.mu.Lock()
	for id, p := range h.peers {
		if id == except {
			continue
		}
		select {
		case p.send <- data:
		default:
			slow = append(slow, p)
		}
	}
	h.mu.Unlock()

	for _, p := range slow {
		h.logger.Warn("peer too slow, disconnecting", slog.String("peer", p.id), slog.String("nick", p.nick))
		h.unregister(p)
	}
}

// Send broadcasts a frame from the host to every peer.
func (h *Hub) Send(msg protocol.Message) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	msg.Sender = HostSender
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast("", data)
	return nil
}

// Peers returns the nicknames of the connected peers.
func (h *Hub) Peers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p.nick)
	}
	return out
}

// Close disconnects every peer and refuses new ones. It waits for the
// writer goroutines to finish.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	h.wg.Wait()
	return nil
}
