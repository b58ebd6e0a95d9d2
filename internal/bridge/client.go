package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/registry"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// ErrDetached indicates the bridge connection is gone; every outstanding
// and future call fails with it.
var ErrDetached = errors.New("bridge: detached")

// Client is the remote end of an attach session. Calls are serialized over
// the single websocket; it is safe for concurrent use.
type Client struct {
	conn  *websocket.Conn
	codec codec

	session string
	uid     uint32
	pid     uint32

	callMu  sync.Mutex // one outstanding call at a time
	writeMu sync.Mutex

	replies chan *wire.Transaction
	control chan controlMsg

	mu      sync.Mutex
	watches map[string]func(uint32)

	closeOnce sync.Once
	done      chan struct{}
}

// Dial attaches to a bridge endpoint and completes the hello exchange.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", url, err)
	}

	var hello controlMsg
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bridge: read hello: %w", err)
	}
	if hello.Type != msgHello {
		conn.Close()
		return nil, fmt.Errorf("bridge: unexpected first frame %q", hello.Type)
	}

	c := &Client{
		conn:    conn,
		codec:   codec{compress: hello.Compression},
		session: hello.Session,
		uid:     hello.UID,
		pid:     hello.PID,
		replies: make(chan *wire.Transaction, 1),
		control: make(chan controlMsg, 8),
		watches: make(map[string]func(uint32)),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Session returns the server-assigned session id.
func (c *Client) Session() string { return c.session }

// UID returns the credential the server assigned this peer.
func (c *Client) UID() uint32 { return c.uid }

// PID returns the router process id backing this session.
func (c *Client) PID() uint32 { return c.pid }

// Close tears the session down; the server side observes it as process
// death.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() { close(c.done) })
	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			txn, err := c.codec.decode(frame)
			if err != nil {
				continue
			}
			select {
			case c.replies <- txn:
			default:
			}
		case websocket.TextMessage:
			msg, err := parseControl(frame)
			if err != nil {
				continue
			}
			if msg.Type == msgDeath {
				c.mu.Lock()
				cb := c.watches[msg.Watch]
				delete(c.watches, msg.Watch)
				c.mu.Unlock()
				if cb != nil {
					go cb(msg.Handle)
				}
				continue
			}
			select {
			case c.control <- msg:
			default:
			}
		}
	}
}

// Call performs a synchronous transaction on a remote handle.
func (c *Client) Call(h uint32, code uint32, data *wire.Writer) (*wire.Reader, error) {
	if data == nil {
		data = wire.NewWriter()
	}
	c.callMu.Lock()
	defer c.callMu.Unlock()

	txn := &wire.Transaction{
		Target:  h,
		Code:    code,
		Flags:   wire.FlagReplyExpected,
		Payload: data.Payload(),
		Handles: data.Handles(),
	}
	if err := c.writeFrame(txn); err != nil {
		return nil, err
	}
	select {
	case rep := <-c.replies:
		return core.OpenReply(rep)
	case <-c.done:
		return nil, ErrDetached
	}
}

// Oneway hands a transaction off without waiting for a reply.
func (c *Client) Oneway(h uint32, code uint32, data *wire.Writer) error {
	if data == nil {
		data = wire.NewWriter()
	}
	return c.writeFrame(&wire.Transaction{
		Target:  h,
		Code:    code,
		Flags:   wire.FlagOneway,
		Payload: data.Payload(),
		Handles: data.Handles(),
	})
}

// Lookup resolves a published name through the reserved registry handle.
func (c *Client) Lookup(name string) (uint32, error) {
	w := wire.NewWriter()
	w.WriteString(name)
	rep, err := c.Call(uint32(core.RegistryHandle), registry.CodeLookup, w)
	if err != nil {
		return 0, err
	}
	return rep.ReadHandle()
}

// List returns the published service names.
func (c *Client) List() ([]string, error) {
	rep, err := c.Call(uint32(core.RegistryHandle), registry.CodeList, wire.NewWriter())
	if err != nil {
		return nil, err
	}
	n, err := rep.ReadUint32()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := rep.ReadString()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// LinkToDeath watches a remote handle; cb runs once if the node behind it
// dies. The returned token cancels the watch via UnlinkToDeath.
func (c *Client) LinkToDeath(h uint32, cb func(handle uint32)) (string, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.writeControl(controlMsg{Type: msgLink, Handle: h}); err != nil {
		return "", err
	}
	select {
	case msg := <-c.control:
		switch msg.Type {
		case msgLinked:
			c.mu.Lock()
			c.watches[msg.Watch] = cb
			c.mu.Unlock()
			return msg.Watch, nil
		case msgError:
			return "", fmt.Errorf("bridge: link: %s", msg.Message)
		default:
			return "", fmt.Errorf("bridge: unexpected control reply %q", msg.Type)
		}
	case <-c.done:
		return "", ErrDetached
	}
}

// UnlinkToDeath cancels a watch.
func (c *Client) UnlinkToDeath(token string) error {
	c.mu.Lock()
	delete(c.watches, token)
	c.mu.Unlock()

	c.callMu.Lock()
	defer c.callMu.Unlock()
	if err := c.writeControl(controlMsg{Type: msgUnlink, Watch: token}); err != nil {
		return err
	}
	select {
	case <-c.control:
		return nil
	case <-c.done:
		return ErrDetached
	}
}

// Ping round-trips a control frame.
func (c *Client) Ping() error {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	if err := c.writeControl(controlMsg{Type: msgPing}); err != nil {
		return err
	}
	select {
	case msg := <-c.control:
		if msg.Type != msgPong {
			return fmt.Errorf("bridge: unexpected control reply %q", msg.Type)
		}
		return nil
	case <-c.done:
		return ErrDetached
	}
}

func (c *Client) writeFrame(txn *wire.Transaction) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, c.codec.encode(txn))
}

func (c *Client) writeControl(msg controlMsg) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}
