package registry

import (
	"github.com/GriffinCanCode/Transit/internal/call"
	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// Client is the per-process face of the registry, a proxy on the reserved
// handle.
type Client struct {
	proxy *call.Proxy
}

// NewClient wraps a channel's view of the registry.
func NewClient(ch *core.Channel) *Client {
	return &Client{proxy: call.NewProxy(ch, core.RegistryHandle)}
}

// Publish binds name to a handle on the caller's channel, overwriting any
// previous binding.
func (c *Client) Publish(name string, h core.Handle) error {
	w := wire.NewWriter()
	w.WriteString(name)
	w.WriteHandle(uint32(h))
	_, err := c.proxy.Call(CodePublish, w)
	return err
}

// Lookup resolves name to a handle valid on the caller's channel. An
// unpublished name fails with core.ErrNotFound.
func (c *Client) Lookup(name string) (core.Handle, error) {
	w := wire.NewWriter()
	w.WriteString(name)
	r, err := c.proxy.Call(CodeLookup, w)
	if err != nil {
		return 0, err
	}
	h, err := r.ReadHandle()
	if err != nil {
		return 0, err
	}
	return core.Handle(h), nil
}

// Resolve looks a name up and wraps the handle in a proxy.
func (c *Client) Resolve(name string) (*call.Proxy, error) {
	h, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	return call.NewProxy(c.proxy.Channel(), h), nil
}

// List returns the published names.
func (c *Client) List() ([]string, error) {
	r, err := c.proxy.Call(CodeList, wire.NewWriter())
	if err != nil {
		return nil, err
	}
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
