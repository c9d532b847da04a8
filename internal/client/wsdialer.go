package client

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WSDialer dials the event channel over websocket.
type WSDialer struct {
	d *websocket.Dialer
}

func NewWSDialer() *WSDialer {
	return &WSDialer{d: websocket.DefaultDialer}
}

func (w *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := w.d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket dial")
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) ReadMessage() ([]byte, error) {
	_, b, err := w.c.ReadMessage()
	return b, err
}

func (w wsConn) Close() error {
	return w.c.Close()
}
