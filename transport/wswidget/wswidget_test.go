package wswidget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func newServerConn(t *testing.T) (*Conn, *Conn) {
	t.Helper()

	serverConnCh := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- Wrap(ws, "widget1")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientWS, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	client := Wrap(clientWS, "widget1")

	var server *Conn
	select {
	case server = <-serverConnCh:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the websocket connection")
	}

	t.Cleanup(func() { _ = client.Close() })
	t.Cleanup(func() { _ = server.Close() })
	return client, server
}

func TestSendDeliversFrameToPeer(t *testing.T) {
	client, server := newServerConn(t)

	require.NoError(t, client.Send(context.Background(), []byte(`{"action":"navigate"}`)))

	select {
	case frame := <-server.Inbound():
		assert.Equal(t, `{"action":"navigate"}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestCloseClosesInboundChannel(t *testing.T) {
	client, server := newServerConn(t)

	require.NoError(t, client.Close())

	select {
	case _, ok := <-server.Inbound():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("server inbound channel never closed after peer close")
	}
}
