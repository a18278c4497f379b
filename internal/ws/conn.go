package ws

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn exposes a websocket as a byte stream so a STOMP client can frame
// over it. Each Write is sent as one text message.
type wsConn struct {
	conn   *websocket.Conn
	reader io.Reader
	rmu    sync.Mutex
	wmu    sync.Mutex
	done   chan struct{}
	once   sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, done: make(chan struct{})}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		if c.reader == nil {
			_, r, err := c.conn.NextReader()
			if err != nil {
				c.markDone()
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		c.markDone()
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.markDone()
	return c.conn.Close()
}

func (c *wsConn) markDone() {
	c.once.Do(func() { close(c.done) })
}
