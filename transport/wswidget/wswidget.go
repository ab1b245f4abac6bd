// Package wswidget implements internal/widget/transport.Transport over a
// gorilla/websocket connection, grounded on the teacher's
// cmd/dendrite-demo-pinecone/conn WebSocketConn wrapper (there wrapping a
// net.Conn; here wrapping the widget driver's framed JSON contract
// directly, since the widget transport is message-oriented rather than a
// byte stream).
package wswidget

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Conn adapts a *websocket.Conn to internal/widget/transport.Transport. A
// single background goroutine (started by Wrap) reads frames off the
// socket; Send may be called concurrently with that goroutine, guarded by
// writeMu since gorilla/websocket permits only one writer at a time.
type Conn struct {
	ws       *websocket.Conn
	widgetID string

	writeMu sync.Mutex
	inbound chan []byte
	errors  chan error

	closeOnce sync.Once
}

// Wrap constructs a Conn around an already-upgraded websocket connection
// and starts its read pump.
func Wrap(ws *websocket.Conn, widgetID string) *Conn {
	c := &Conn{
		ws:       ws,
		widgetID: widgetID,
		inbound:  make(chan []byte, 64),
		errors:   make(chan error, 8),
	}
	go c.readPump()
	return c
}

func (c *Conn) readPump() {
	defer close(c.inbound)
	defer close(c.errors)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithField("widget_id", c.widgetID).WithError(err).Warn("widget websocket closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case c.inbound <- cp:
		default:
			c.errors <- errBackpressure
		}
	}
}

// Send implements transport.Transport.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Inbound implements transport.Transport.
func (c *Conn) Inbound() <-chan []byte { return c.inbound }

// Errors implements transport.Transport.
func (c *Conn) Errors() <-chan error { return c.errors }

// Close implements transport.Transport. It sends a close frame
// best-effort, then closes the underlying connection; the read pump's own
// close of inbound/errors follows once ReadMessage unblocks with an error.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

type wsError string

func (e wsError) Error() string { return string(e) }

const errBackpressure = wsError("widget inbound queue full, frame dropped")
