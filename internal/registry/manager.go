package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/call"
	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/identity"
	"github.com/GriffinCanCode/Transit/internal/logging"
	"github.com/GriffinCanCode/Transit/internal/policy"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// Method codes of the registry interface. Exported because remote peers
// behind the bridge address the registry by code, without this package's
// client.
const (
	CodePublish uint32 = 1
	CodeLookup  uint32 = 2
	CodeList    uint32 = 3
)

// Manager hosts the registry node. It holds a strong reference on every
// published service and drops the entry when the service dies.
type Manager struct {
	log *logging.Logger
	chk *policy.Checker
	ch  *core.Channel

	mu      sync.RWMutex
	entries map[string]core.Handle
}

// Install opens the registry's own channel on the router, registers the
// stub, and wires it in as the context manager behind the reserved handle.
func Install(r *core.Router, chk *policy.Checker, log *logging.Logger) (*Manager, error) {
	if chk == nil {
		chk = policy.NewPermissive()
	}
	if log == nil {
		log = logging.NewNop()
	}
	ch, err := r.Open(0) // system identity
	if err != nil {
		return nil, fmt.Errorf("registry: open channel: %w", err)
	}
	m := &Manager{
		log:     log.Named("registry"),
		chk:     chk,
		ch:      ch,
		entries: make(map[string]core.Handle),
	}
	stub := call.NewStub("registry", log).
		Handle(CodePublish, m.publish).
		Handle(CodeLookup, m.lookup).
		Handle(CodeList, m.list)

	h, err := ch.Register(stub)
	if err != nil {
		return nil, fmt.Errorf("registry: register stub: %w", err)
	}
	if err := r.SetContextManager(ch, h); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) publish(ctx context.Context, in *wire.Reader, out *wire.Writer) error {
	name, err := in.ReadString()
	if err != nil {
		return err
	}
	h, err := in.ReadHandle()
	if err != nil {
		return err
	}

	handle := core.Handle(h)
	caller := identity.Calling(ctx)
	if !m.chk.MayPublish(name, caller.UID) {
		// Delivery adopted a reference for this transaction; a rejected
		// publish must not keep it.
		_ = m.ch.Release(handle)
		return fmt.Errorf("publish %q by uid %d: %w", name, caller.UID, core.ErrPermissionDenied)
	}

	m.mu.Lock()
	old, replaced := m.entries[name]
	m.entries[name] = handle
	m.mu.Unlock()

	// Drop the entry if the published node dies; the registry must not
	// hand out capabilities to corpses.
	if _, err := m.ch.LinkToDeath(handle, core.DeathRecipientFunc(func(dead core.Handle) {
		m.dropDead(name, dead)
	})); err != nil {
		// The node died between delivery and linking; never leave a corpse
		// in the table.
		m.log.Warn("death link on published service failed",
			zap.String("name", name),
			zap.Error(err),
		)
		m.dropDead(name, handle)
	}

	if replaced {
		// Publish overwrites; the reference held for the old entry goes.
		// Republishing the same handle still balances, since delivery
		// acquired a fresh reference for this transaction.
		_ = m.ch.Release(old)
	}
	m.log.Info("service published",
		zap.String("name", name),
		zap.Uint32("uid", caller.UID),
		zap.Uint32("pid", caller.PID),
		zap.Bool("replaced", replaced),
	)
	return nil
}

func (m *Manager) lookup(ctx context.Context, in *wire.Reader, out *wire.Writer) error {
	name, err := in.ReadString()
	if err != nil {
		return err
	}
	caller := identity.Calling(ctx)
	if !m.chk.MayCall(name, caller.UID) {
		return fmt.Errorf("lookup %q by uid %d: %w", name, caller.UID, core.ErrPermissionDenied)
	}

	m.mu.RLock()
	h, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("service %q: %w", name, core.ErrNotFound)
	}
	out.WriteHandle(uint32(h))
	return nil
}

func (m *Manager) list(ctx context.Context, in *wire.Reader, out *wire.Writer) error {
	names := m.Names()
	out.WriteUint32(uint32(len(names)))
	for _, n := range names {
		out.WriteString(n)
	}
	return nil
}

func (m *Manager) dropDead(name string, dead core.Handle) {
	m.mu.Lock()
	current, ok := m.entries[name]
	if ok && current == dead {
		delete(m.entries, name)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if ok {
		_ = m.ch.Release(dead)
		m.log.Info("service dropped after publisher death", zap.String("name", name))
	}
}

// Names returns the published names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}
