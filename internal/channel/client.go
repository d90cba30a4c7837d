package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/portfolio/internal/protocol"
)

// Client is the guest side of the channel: one websocket to the host's hub.
// It implements engine.Transport.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	deliver func(protocol.Message)
	logger  *slog.Logger

	done chan struct{}
	once sync.Once
	err  error
}

// JoinRequest is the body of POST /share/join.
type JoinRequest struct {
	Nickname   string `json:"nickname"`
	Passphrase string `json:"passphrase"`
}

// JoinResponse is the answer to a successful join.
type JoinResponse struct {
	Token string `json:"token"`
	Title string `json:"title"`
}

// inviteClient is used when RequestInvite gets no client. A host that
// accepts the connection but never answers must not hang the join.
var inviteClient = &http.Client{Timeout: 15 * time.Second}

// RequestInvite asks the host at baseURL for an invite token.
func RequestInvite(ctx context.Context, hc *http.Client, baseURL, nick, passphrase string) (JoinResponse, error) {
	if hc == nil {
		hc = inviteClient
	}
	body, err := json.Marshal(JoinRequest{Nickname: nick, Passphrase: passphrase})
	if err != nil {
		return JoinResponse{}, err
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/share/join"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return JoinResponse{}, fmt.Errorf("channel: building join request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("channel: joining %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Message == "" {
			e.Message = resp.Status
		}
		return JoinResponse{}, fmt.Errorf("channel: join refused: %s", e.Message)
	}

	var out JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return JoinResponse{}, fmt.Errorf("channel: decoding join response: %w", err)
	}
	if out.Token == "" {
		return JoinResponse{}, fmt.Errorf("channel: join response has no token")
	}
	return out, nil
}

// WebSocketURL turns the host's http(s) base URL into the channel endpoint.
func WebSocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("channel: parsing host url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("channel: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/share/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the host and starts the reader and writer goroutines.
// Every frame received is handed to deliver, in arrival order.
func Dial(ctx context.Context, baseURL, token string, deliver func(protocol.Message), logger *slog.Logger) (*Client, error) {
	wsURL, err := WebSocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("channel: dialing host: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("channel: dialing host: %w", err)
	}

	c := &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		deliver: deliver,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Client) readPump() {
	defer c.shutdown(nil)

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// The hub pings; any frame proves the host is alive.
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.shutdown(err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("undecodable frame dropped", slog.String("error", err.Error()))
			continue
		}
		c.deliver(msg)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) shutdown(err error) {
	c.once.Do(func() {
		c.err = err
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		close(c.done)
		_ = c.conn.Close()
		if err != nil {
			c.logger.Warn("channel lost", slog.String("error", err.Error()))
		}
	})
}

// Send queues a frame for the host. It never blocks.
func (c *Client) Send(msg protocol.Message) error {
	msg.Sender = ""
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, nil for a normal close.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close ends the connection.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}
