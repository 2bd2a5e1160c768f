package broadcast

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrDecode wraps frames that could not be decoded with the codec.
var ErrDecode = errors.New("broadcast: decode")

// Conn is a subscription to a Hub.
type Conn struct {
	conn  *websocket.Conn
	codec Codec

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Dial subscribes to the hub at rawURL (ws:// or wss://) using codec. A
// nil codec selects JSON.
func Dial(ctx context.Context, rawURL string, codec Codec) (*Conn, error) {
	if codec == nil {
		codec = JSON
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("broadcast: parse url: %w", err)
	}
	q := u.Query()
	q.Set("codec", codec.Name())
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("broadcast: dial %s: %w", u.Redacted(), err)
	}
	return &Conn{
		conn:    conn,
		codec:   codec,
		closeCh: make(chan struct{}),
	}, nil
}

// Events returns an iterator over received events. A frame that fails to
// decode yields an error and iteration continues; a read error is yielded
// last. A normal close by either side ends iteration without an error.
func (c *Conn) Events() iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				select {
				case <-c.closeCh:
					return
				default:
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				yield(nil, fmt.Errorf("broadcast: read: %w", err))
				return
			}
			var ev Event
			if err := c.codec.Unmarshal(data, &ev); err != nil {
				if !yield(nil, fmt.Errorf("%w: %w", ErrDecode, err)) {
					return
				}
				continue
			}
			if !yield(&ev, nil) {
				return
			}
		}
	}
}

// Close closes the subscription.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
