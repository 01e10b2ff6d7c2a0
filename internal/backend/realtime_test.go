package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer is a minimal realtime endpoint: it upgrades the
// connection, records incoming frames, and lets tests push events down.
type wsTestServer struct {
	server *httptest.Server

	mu     sync.Mutex
	conn   *websocket.Conn
	frames []subscribeFrame

	connected chan struct{}
	frameCh   chan subscribeFrame
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()

	ws := &wsTestServer{
		connected: make(chan struct{}, 4),
		frameCh:   make(chan subscribeFrame, 16),
	}
	upgrader := websocket.Upgrader{}

	ws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.mu.Lock()
		ws.conn = conn
		ws.mu.Unlock()
		ws.connected <- struct{}{}

		for {
			var frame subscribeFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			ws.mu.Lock()
			ws.frames = append(ws.frames, frame)
			ws.mu.Unlock()
			ws.frameCh <- frame
		}
	}))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *wsTestServer) waitConnected(t *testing.T) {
	t.Helper()
	select {
	case <-ws.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for websocket connection")
	}
}

func (ws *wsTestServer) nextFrame(t *testing.T) subscribeFrame {
	t.Helper()
	select {
	case frame := <-ws.frameCh:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return subscribeFrame{}
	}
}

func (ws *wsTestServer) push(t *testing.T, evt ChangeEvent) {
	t.Helper()
	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()
	require.NotNil(t, conn, "no active connection")

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func (ws *wsTestServer) dropConnection() {
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func TestSubscribeDeliversTableEvents(t *testing.T) {
	ws := newWSTestServer(t)

	rt := NewWSRealtime(ws.server.URL, "anon-key", staticToken("user-token"))
	defer rt.Close()
	ws.waitConnected(t)

	ch, cancel := rt.Subscribe(TableTodos)
	defer cancel()

	frame := ws.nextFrame(t)
	assert.Equal(t, actionSubscribe, frame.Action)
	assert.Equal(t, TableTodos, frame.Table)

	ws.push(t, ChangeEvent{
		Table: TableTodos,
		Type:  EventInsert,
		Row:   json.RawMessage(`{"id":"t-1"}`),
	})

	select {
	case evt := <-ch:
		assert.Equal(t, TableTodos, evt.Table)
		assert.Equal(t, EventInsert, evt.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestEventsForOtherTablesAreNotDelivered(t *testing.T) {
	ws := newWSTestServer(t)

	rt := NewWSRealtime(ws.server.URL, "anon-key", nil)
	defer rt.Close()
	ws.waitConnected(t)

	todosCh, cancel := rt.Subscribe(TableTodos)
	defer cancel()
	ws.nextFrame(t)

	ws.push(t, ChangeEvent{Table: TableSessions, Type: EventInsert})
	ws.push(t, ChangeEvent{Table: TableTodos, Type: EventDelete})

	// Only the todos event arrives; the sessions event has no subscriber.
	select {
	case evt := <-todosCh:
		assert.Equal(t, TableTodos, evt.Table)
		assert.Equal(t, EventDelete, evt.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	select {
	case evt := <-todosCh:
		t.Fatalf("unexpected extra event %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelClosesChannelAndUnsubscribes(t *testing.T) {
	ws := newWSTestServer(t)

	rt := NewWSRealtime(ws.server.URL, "anon-key", nil)
	defer rt.Close()
	ws.waitConnected(t)

	ch, cancel := rt.Subscribe(TableSessions)
	frame := ws.nextFrame(t)
	require.Equal(t, actionSubscribe, frame.Action)

	cancel()
	frame = ws.nextFrame(t)
	assert.Equal(t, actionUnsubscribe, frame.Action)
	assert.Equal(t, TableSessions, frame.Table)

	_, open := <-ch
	assert.False(t, open, "channel closed after cancel")

	// Cancel is idempotent.
	cancel()
}

func TestResubscribesAfterReconnect(t *testing.T) {
	ws := newWSTestServer(t)

	rt := NewWSRealtime(ws.server.URL, "anon-key", nil)
	defer rt.Close()
	ws.waitConnected(t)

	ch, cancel := rt.Subscribe(TableTodos)
	defer cancel()
	ws.nextFrame(t)

	ws.dropConnection()
	ws.waitConnected(t)

	frame := ws.nextFrame(t)
	assert.Equal(t, actionSubscribe, frame.Action)
	assert.Equal(t, TableTodos, frame.Table)

	ws.push(t, ChangeEvent{Table: TableTodos, Type: EventUpdate})
	select {
	case evt := <-ch:
		assert.Equal(t, EventUpdate, evt.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event after reconnect")
	}
}

func TestCloseShutsDownAllSubscriptions(t *testing.T) {
	ws := newWSTestServer(t)

	rt := NewWSRealtime(ws.server.URL, "anon-key", nil)
	ws.waitConnected(t)

	todosCh, _ := rt.Subscribe(TableTodos)
	sessionsCh, _ := rt.Subscribe(TableSessions)
	ws.nextFrame(t)
	ws.nextFrame(t)

	require.NoError(t, rt.Close())

	_, open := <-todosCh
	assert.False(t, open)
	_, open = <-sessionsCh
	assert.False(t, open)

	// Close is idempotent.
	require.NoError(t, rt.Close())
}
