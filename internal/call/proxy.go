package call

import (
	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// Proxy is the client side of an interface: a handle plus the channel to
// reach it through. Typed proxies embed it and add one method per code.
type Proxy struct {
	ch *core.Channel
	h  core.Handle
}

// NewProxy wraps a handle obtained from the registry or from a payload.
func NewProxy(ch *core.Channel, h core.Handle) *Proxy {
	return &Proxy{ch: ch, h: h}
}

// Handle returns the wrapped handle.
func (p *Proxy) Handle() core.Handle { return p.h }

// Channel returns the channel the proxy transacts through.
func (p *Proxy) Channel() *core.Channel { return p.ch }

// Call performs a synchronous transaction and blocks for the paired reply.
func (p *Proxy) Call(code uint32, data *wire.Writer) (*wire.Reader, error) {
	return p.ch.Transact(p.h, code, data, wire.FlagReplyExpected)
}

// Oneway hands the payload off without waiting for a reply. Calls from the
// same thread to this proxy reach the stub in send order; nothing more is
// guaranteed.
func (p *Proxy) Oneway(code uint32, data *wire.Writer) error {
	_, err := p.ch.Transact(p.h, code, data, wire.FlagOneway)
	return err
}

// Ping probes liveness of the remote node.
func (p *Proxy) Ping() error {
	return p.ch.Ping(p.h)
}

// LinkToDeath registers a death recipient for the proxied node.
func (p *Proxy) LinkToDeath(rec core.DeathRecipient) (*core.DeathLink, error) {
	return p.ch.LinkToDeath(p.h, rec)
}
