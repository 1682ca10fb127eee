package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/protocol"
	"github.com/thereayou/marketchat/pkg/auth"
)

type socketServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	requests chan *http.Request
}

func newSocketServer(t *testing.T) *socketServer {
	t.Helper()

	s := &socketServer{
		conns:    make(chan *websocket.Conn, 4),
		requests: make(chan *http.Request, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests <- r
		if r.URL.Query().Get("token") == "reject" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *socketServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept a connection")
		return nil
	}
}

func newTestDialer(baseURL string) *Dialer {
	return NewDialer(Config{BaseURL: baseURL, WriteWait: time.Second}, zerolog.Nop())
}

func TestOpen_AuthFailures(t *testing.T) {
	srv := newSocketServer(t)
	d := newTestDialer(srv.URL)
	ctx := context.Background()

	expired, err := auth.NewJWTManager("secret", -time.Minute).Generate("u-1")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"expired jwt", expired},
		{"handshake rejected", "reject"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := d.Open(ctx, "room-1", tc.token)
			require.ErrorIs(t, err, domain.ErrAuth)
			assert.Nil(t, s)
		})
	}
}

func TestOpen_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestDialer(url).Open(context.Background(), "room-1", "tok")
	require.ErrorIs(t, err, ErrConnection)
}

func TestOpen_CancelledContext(t *testing.T) {
	srv := newSocketServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDialer(srv.URL).Open(ctx, "room-1", "tok")
	require.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_FramesInOrderMalformedDropped(t *testing.T) {
	srv := newSocketServer(t)
	frames := make(chan protocol.InboundFrame, 8)

	s, err := newTestDialer(srv.URL).Open(context.Background(), "room-1", "tok", func(f protocol.InboundFrame) {
		frames <- f
	})
	require.NoError(t, err)
	defer s.Close()

	req := <-srv.requests
	assert.Equal(t, "/ws/chat/room-1", req.URL.Path)
	assert.Equal(t, "tok", req.URL.Query().Get("token"))
	assert.Empty(t, req.Header.Get("Authorization"))

	conn := srv.accept(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id": 2, "message": "first"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message": "no sender"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id": 2, "message": "second"}`)))

	var got []string
	for len(got) < 2 {
		select {
		case f := <-frames:
			got = append(got, f.Message)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{"first", "second"}, got)
	assert.Equal(t, StateOpen, s.State())
}

func TestSession_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	srv := newSocketServer(t)
	frames := make(chan string, 4)

	s, err := newTestDialer(srv.URL).Open(context.Background(), "room-1", "tok",
		func(f protocol.InboundFrame) {
			if f.Message == "boom" {
				panic("handler bug")
			}
		},
		func(f protocol.InboundFrame) { frames <- f.Message },
	)
	require.NoError(t, err)
	defer s.Close()

	conn := srv.accept(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id": 2, "message": "boom"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id": 2, "message": "after"}`)))

	assert.Equal(t, "boom", <-frames)
	select {
	case msg := <-frames:
		assert.Equal(t, "after", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("frame after panic was not delivered")
	}
}

func TestSession_SendAndClose(t *testing.T) {
	srv := newSocketServer(t)

	s, err := newTestDialer(srv.URL).Open(context.Background(), "room-1", "tok")
	require.NoError(t, err)
	conn := srv.accept(t)

	assert.ErrorIs(t, s.Send(protocol.NewChatFrame("  ", "", "")), ErrEmptyFrame)
	require.NoError(t, s.Send(protocol.NewChatFrame("hello", "https://cdn.test/a.png", "a.png")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "chat_message", out["type"])
	assert.Equal(t, "hello", out["message"])
	assert.Equal(t, "https://cdn.test/a.png", out["file"])

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, s.Err())
	assert.ErrorIs(t, s.Send(protocol.NewChatFrame("late", "", "")), ErrNotConnected)
}

func TestSession_ServerDropClosesSession(t *testing.T) {
	srv := newSocketServer(t)

	s, err := newTestDialer(srv.URL).Open(context.Background(), "room-1", "tok")
	require.NoError(t, err)

	closed := make(chan error, 1)
	s.OnClose(func(err error) { closed <- err })

	conn := srv.accept(t)
	conn.Close()

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, ErrConnection)
	case <-time.After(2 * time.Second):
		t.Fatal("close handler was not called")
	}

	<-s.Done()
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Send(protocol.NewChatFrame("hi", "", "")), ErrNotConnected)

	late := make(chan error, 1)
	s.OnClose(func(err error) { late <- err })
	assert.ErrorIs(t, <-late, ErrConnection)
}
