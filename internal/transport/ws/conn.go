package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hanyusok/docplus-dev/internal/session"
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("outbound queue full")
)

// wsConn implements session.Conn. Send never blocks: frames go to a buffered
// queue drained by writeLoop, and a full queue closes the connection.
type wsConn struct {
	id    string
	conn  *websocket.Conn
	codec Codec

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	writeWait  time.Duration
	pingPeriod time.Duration
}

func newWsConn(c *websocket.Conn, codec Codec, opts Options) *wsConn {
	return &wsConn{
		id:         uuid.NewString(),
		conn:       c,
		codec:      codec,
		send:       make(chan []byte, opts.SendBuffer),
		closed:     make(chan struct{}),
		writeWait:  opts.WriteWait,
		pingPeriod: opts.PingPeriod,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ev session.Event) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	data, err := c.codec.Encode(ev)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("ws slow consumer, closing", "conn", c.id, "event", ev.Type)
		_ = c.Close()
		return errSlowConsumer
	}
}

// Close asks writeLoop to flush queued frames and shut the socket down.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			// дописываем то, что уже в очереди (например, error superseded)
			for {
				select {
				case data := <-c.send:
					if err := c.write(data); err != nil {
						return
					}
				default:
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(c.writeWait))
					return
				}
			}
		}
	}
}

func (c *wsConn) write(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(c.codec.FrameType(), data)
}
