package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 64

	defaultPingPeriod = 25 * time.Second
)

type Options struct {
	// Cookie is sent as the Cookie header of the upgrade request; the
	// server reads the session from it as a browser would send it.
	Cookie      string
	DialTimeout time.Duration
	PingPeriod  time.Duration
}

// Conn is the websocket link to the game server. Send never blocks; Run
// owns the socket until the context ends or either pump fails.
type Conn struct {
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	log        *slog.Logger
	pingPeriod time.Duration

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func Dial(ctx context.Context, url string, opts Options, log *slog.Logger) (*Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}

	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.DialTimeout,
	}
	h := http.Header{}
	if opts.Cookie != "" {
		h.Set("Cookie", opts.Cookie)
	}

	ws, resp, err := d.DialContext(ctx, url, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info("connected to game server", "url", url)

	return newConn(ws, opts.PingPeriod, log), nil
}

func newConn(ws *websocket.Conn, pingPeriod time.Duration, log *slog.Logger) *Conn {
	return &Conn{
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		log:        log,
		pingPeriod: pingPeriod,
	}
}

// Send queues one text frame.
func (c *Conn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Run pumps frames until ctx ends (nil) or the connection fails.
func (c *Conn) Run(ctx context.Context, onMessage func([]byte)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(onMessage) })
	g.Go(func() error { return c.writePump(ctx) })
	return g.Wait()
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) readPump(onMessage func([]byte)) error {
	pongWait := c.pingPeriod * 10 / 9

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			c.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%w by server", ErrClosed)
			}
			return fmt.Errorf("read: %w", err)
		}
		onMessage(data)
	}
}

func (c *Conn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			c.Close()
			return nil

		case <-c.done:
			return nil

		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return fmt.Errorf("write: %w", err)
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
