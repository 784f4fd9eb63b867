package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"example.com/resistance-client/internal/game"
	"github.com/gorilla/websocket"
)

const (
	feedBuffer     = 64
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 25 * time.Second
)

// Envelope is one frame on the event feed.
type Envelope struct {
	Type    game.EventKind  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type subscriber struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Feed is a game.Sink that fans events out to websocket subscribers. Slow
// subscribers lose events rather than stall the machine.
type Feed struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewFeed(log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

func (f *Feed) Notify(ev game.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		f.log.Warn("feed: event not encodable", "kind", ev.Kind(), "err", err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: ev.Kind(), Payload: payload})
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		select {
		case s.send <- frame:
		default:
			f.log.Debug("feed: subscriber too slow, event dropped", "kind", ev.Kind())
		}
	}
}

// Subscribers reports the number of connected feed clients.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close disconnects every subscriber.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.close()
		delete(f.subs, s)
	}
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := &subscriber{
		send: make(chan []byte, feedBuffer),
		done: make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
		sub.close()
		_ = ws.Close()
	}()

	// reader only notices the peer going away
	go func() {
		defer sub.close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(feedWriteWait))
			return
		case frame := <-sub.send:
			_ = ws.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}
