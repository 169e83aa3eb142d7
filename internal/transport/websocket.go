package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// wsHandshakeTimeout bounds the HTTP upgrade request that establishes the
// WebSocket tunnel, the same way DialTimeout bounds a plain TCP dial.
const wsHandshakeTimeout = 10 * time.Second

const wsPingPeriod = 30 * time.Second

// WSConn tunnels the raw RFB byte stream over a WebSocket connection, the
// way noVNC/websockify deployments do: the "binary" subprotocol carries RFB
// bytes verbatim, with WebSocket frame boundaries bearing no relation to
// RFB message boundaries. It satisfies Conn, so everything above the
// transport layer is unaware it isn't a plain TCP socket.
type WSConn struct {
	conn *websocket.Conn

	readMu  sync.Mutex
	pending []byte // unread remainder of the current WS message

	writeMu sync.Mutex

	stopOnce sync.Once
	stopPing chan struct{}
}

// DialWebSocket opens a WebSocket tunnel to rawURL (ws:// or wss://), using
// the "binary" subprotocol noVNC/websockify expects. header may carry an
// Origin or Authorization value some proxies require; it may be nil.
func DialWebSocket(ctx context.Context, rawURL string, header http.Header) (*WSConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		Subprotocols:     []string{"binary"},
	}
	conn, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, rfberr.Wrap(rfberr.KindNetworkIO, err, "websocket dial %s", rawURL)
	}

	w := &WSConn{conn: conn, stopPing: make(chan struct{})}
	go w.pingLoop()
	return w, nil
}

func (w *WSConn) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopPing:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := w.conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

const writeWait = 10 * time.Second

// Read implements io.Reader by draining the current WebSocket message
// before asking for the next one; it never blends bytes from two WS
// messages incorrectly since pending always holds only leftover bytes
// from the message currently being drained.
func (w *WSConn) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	for len(w.pending) == 0 {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "websocket read")
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		w.pending = data
	}

	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

// Write sends p as one binary WebSocket message. RFB never depends on
// write-call boundaries, so no attempt is made to chunk or coalesce.
func (w *WSConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "websocket write")
	}
	return len(p), nil
}

// SetDeadline applies to both the next read and the next write.
func (w *WSConn) SetDeadline(t time.Time) error {
	if err := w.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return w.conn.SetWriteDeadline(t)
}

// Close stops the keepalive ping loop and closes the underlying socket.
func (w *WSConn) Close() error {
	w.stopOnce.Do(func() { close(w.stopPing) })

	w.writeMu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	w.writeMu.Unlock()

	return w.conn.Close()
}

var _ fmt.Stringer = (*WSConn)(nil)

func (w *WSConn) String() string {
	return fmt.Sprintf("websocket(%s)", w.conn.RemoteAddr())
}
