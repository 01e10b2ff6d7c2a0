package backend

import (
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// subscribeFrame is the client→server request to start receiving
// change events for a table.
type subscribeFrame struct {
	Action string `json:"action"`
	Table  string `json:"table"`
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// reconnect backoff bounds.
const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// WSRealtime delivers row-change events over a single WebSocket
// connection, fanning them out to per-table subscribers. The connection
// is re-established with exponential backoff and subscriptions are
// re-issued after every reconnect.
type WSRealtime struct {
	wsURL  string
	tokens TokenSource

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string][]chan ChangeEvent
	closed bool
	done   chan struct{}
}

// NewWSRealtime creates a realtime subscriber for the backend at
// baseURL and starts its connection loop.
func NewWSRealtime(baseURL, anonKey string, tokens TokenSource) *WSRealtime {
	wsURL := strings.TrimRight(baseURL, "/") + "/realtime/v1/websocket"
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "?" + url.Values{"apikey": {anonKey}}.Encode()

	r := &WSRealtime{
		wsURL:  wsURL,
		tokens: tokens,
		subs:   make(map[string][]chan ChangeEvent),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Subscribe registers interest in change events on a table. The
// returned cancel function removes the subscription and closes the
// channel.
func (r *WSRealtime) Subscribe(table string) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, 16)

	r.mu.Lock()
	first := len(r.subs[table]) == 0
	r.subs[table] = append(r.subs[table], ch)
	conn := r.conn
	r.mu.Unlock()

	if first && conn != nil {
		r.send(conn, subscribeFrame{Action: actionSubscribe, Table: table})
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() { r.unsubscribe(table, ch) })
	}
	return ch, cancel
}

// Close tears down the connection and every subscription.
func (r *WSRealtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	conn := r.conn
	r.conn = nil
	for table, chans := range r.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(r.subs, table)
	}
	r.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (r *WSRealtime) unsubscribe(table string, ch chan ChangeEvent) {
	r.mu.Lock()
	chans := r.subs[table]
	for i, c := range chans {
		if c == ch {
			r.subs[table] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
	empty := len(r.subs[table]) == 0
	if empty {
		delete(r.subs, table)
	}
	conn := r.conn
	r.mu.Unlock()

	if empty && conn != nil {
		r.send(conn, subscribeFrame{Action: actionUnsubscribe, Table: table})
	}
}

// run owns the connection lifecycle: dial, resubscribe, read until the
// connection drops, back off, repeat.
func (r *WSRealtime) run() {
	backoff := minBackoff
	for {
		select {
		case <-r.done:
			return
		default:
		}

		conn, err := r.dial()
		if err != nil {
			log.Printf("realtime: connect failed: %v", err)
			select {
			case <-r.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			conn.Close()
			return
		}
		r.conn = conn
		tables := make([]string, 0, len(r.subs))
		for table := range r.subs {
			tables = append(tables, table)
		}
		r.mu.Unlock()

		for _, table := range tables {
			r.send(conn, subscribeFrame{Action: actionSubscribe, Table: table})
		}

		r.readLoop(conn)

		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
		conn.Close()
	}
}

func (r *WSRealtime) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := map[string][]string{}
	if r.tokens != nil {
		if t := r.tokens.AccessToken(); t != "" {
			header["Authorization"] = []string{"Bearer " + t}
		}
	}

	conn, _, err := dialer.Dial(r.wsURL, header)
	return conn, err
}

func (r *WSRealtime) readLoop(conn *websocket.Conn) {
	for {
		var evt ChangeEvent
		if err := conn.ReadJSON(&evt); err != nil {
			select {
			case <-r.done:
			default:
				log.Printf("realtime: read failed, reconnecting: %v", err)
			}
			return
		}
		r.dispatch(evt)
	}
}

func (r *WSRealtime) dispatch(evt ChangeEvent) {
	r.mu.Lock()
	chans := make([]chan ChangeEvent, len(r.subs[evt.Table]))
	copy(chans, r.subs[evt.Table])
	r.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- evt:
		default:
			// Drop if the subscriber is behind; every event triggers a
			// full refresh anyway, so a coalesced stream is equivalent.
		}
	}
}

func (r *WSRealtime) send(conn *websocket.Conn, frame subscribeFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("realtime: sending %s for %s: %v", frame.Action, frame.Table, err)
	}
}
