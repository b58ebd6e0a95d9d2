package core_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/registry"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// TestDeathNotificationExactlyOnce: every watcher fires once and only once
// when the hosting process goes away.
func TestDeathNotificationExactlyOnce(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	h, err := p.Register(calculatorStub(p))
	require.NoError(t, err)
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, err := registry.NewClient(q).Lookup("svc")
	require.NoError(t, err)

	var first, second atomic.Int32
	_, err = q.LinkToDeath(hq, core.DeathRecipientFunc(func(dead core.Handle) {
		assert.Equal(t, hq, dead)
		first.Add(1)
	}))
	require.NoError(t, err)
	_, err = q.LinkToDeath(hq, core.DeathRecipientFunc(func(core.Handle) {
		second.Add(1)
	}))
	require.NoError(t, err)

	require.NoError(t, p.Close())

	require.Eventually(t, func() bool {
		return first.Load() == 1 && second.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// No duplicate delivery afterwards.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestUnlinkStopsNotification(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	h, _ := p.Register(calculatorStub(p))
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	var fired atomic.Int32
	link, err := q.LinkToDeath(hq, core.DeathRecipientFunc(func(core.Handle) {
		fired.Add(1)
	}))
	require.NoError(t, err)

	// A true return is the guarantee the recipient never runs.
	require.True(t, q.UnlinkToDeath(link))
	require.NoError(t, p.Close())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestUnlinkAfterFireReportsFalse(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	h, _ := p.Register(calculatorStub(p))
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	fired := make(chan struct{})
	link, err := q.LinkToDeath(hq, core.DeathRecipientFunc(func(core.Handle) {
		close(fired)
	}))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("death notification never fired")
	}
	assert.False(t, q.UnlinkToDeath(link))
}

func TestLinkToDeadNodeFails(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	h, _ := p.Register(calculatorStub(p))
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	require.NoError(t, p.Close())

	// The link fails immediately rather than registering a callback that
	// can never fire.
	require.Eventually(t, func() bool {
		_, err := q.LinkToDeath(hq, core.DeathRecipientFunc(func(core.Handle) {}))
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSyncCallToDeadPeerFails(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	h, _ := p.Register(calculatorStub(p))
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	require.NoError(t, p.Close())

	w := wire.NewWriter()
	w.WriteInt32(1)
	_, err := q.Transact(hq, codeDouble, w, wire.FlagReplyExpected)
	assert.ErrorIs(t, err, core.ErrPeerDead)
}

// TestPendingCallFailsWhenPeerDiesMidCall: a caller parked on a reply is
// unblocked with a dead-peer error, not left hanging.
func TestPendingCallFailsWhenPeerDiesMidCall(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	entered := make(chan struct{})
	gate := make(chan struct{})
	h, err := p.Register(blockingStub(entered, gate))
	require.NoError(t, err)
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	errs := make(chan error, 1)
	go func() {
		_, err := q.Transact(hq, codeBlock, wire.NewWriter(), wire.FlagReplyExpected)
		errs <- err
	}()

	<-entered
	require.NoError(t, p.Close())
	defer close(gate)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, core.ErrPeerDead)
	case <-time.After(2 * time.Second):
		t.Fatal("caller stayed parked after peer death")
	}
}

// TestCloseReturnsWithDispatchInFlight: teardown fails pending calls and
// hands off death registrations without waiting for a stub execution that
// is still running.
func TestCloseReturnsWithDispatchInFlight(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	entered := make(chan struct{})
	gate := make(chan struct{})
	defer close(gate)
	h, err := p.Register(blockingStub(entered, gate))
	require.NoError(t, err)
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	errs := make(chan error, 1)
	go func() {
		_, err := q.Transact(hq, codeBlock, wire.NewWriter(), wire.FlagReplyExpected)
		errs <- err
	}()
	<-entered

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an in-flight stub execution")
	}

	// The parked caller still observes death, not a hang.
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, core.ErrPeerDead)
	case <-time.After(2 * time.Second):
		t.Fatal("caller stayed parked after peer death")
	}
}

func TestOnewayToDeadPeerSilentlyDropped(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	q, _ := r.Open(2000)
	defer q.Close()

	h, _ := p.Register(calculatorStub(p))
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	require.NoError(t, p.Close())

	w := wire.NewWriter()
	w.WriteInt32(1)
	_, err := q.Transact(hq, codeDouble, w, wire.FlagOneway)
	assert.NoError(t, err)

	snap := r.Metrics().GetSnapshot()
	assert.GreaterOrEqual(t, snap.OnewayDropped, int64(1))
}

// TestNodeDiesOnLastRelease drives a node to destruction through reference
// counting alone, with the hosting process still alive.
func TestNodeDiesOnLastRelease(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	defer p.Close()
	q, _ := r.Open(2000)
	defer q.Close()

	rcP := registry.NewClient(p)
	rcQ := registry.NewClient(q)

	hOld, err := p.Register(calculatorStub(p))
	require.NoError(t, err)
	require.NoError(t, rcP.Publish("svc", hOld))

	hq, err := rcQ.Lookup("svc")
	require.NoError(t, err)

	fired := make(chan struct{})
	_, err = q.LinkToDeath(hq, core.DeathRecipientFunc(func(core.Handle) {
		close(fired)
	}))
	require.NoError(t, err)

	// Overwriting the name makes the registry drop its reference on the
	// old node; now only P's and Q's handles keep it alive.
	hNew, err := p.Register(calculatorStub(p))
	require.NoError(t, err)
	require.NoError(t, rcP.Publish("svc", hNew))

	require.NoError(t, p.Release(hOld))
	require.NoError(t, q.Ping(hq)) // Q's reference still holds it up

	require.NoError(t, q.Release(hq))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("node should die when its last strong reference goes")
	}

	// The name now resolves to the replacement, which works.
	hq2, err := rcQ.Lookup("svc")
	require.NoError(t, err)
	require.NoError(t, q.Ping(hq2))
}

func TestDoubleReleaseRejected(t *testing.T) {
	r, _ := newTestRouter(t, core.Options{})
	p, _ := r.Open(1000)
	defer p.Close()
	q, _ := r.Open(2000)
	defer q.Close()

	h, _ := p.Register(calculatorStub(p))
	require.NoError(t, registry.NewClient(p).Publish("svc", h))
	hq, _ := registry.NewClient(q).Lookup("svc")

	require.NoError(t, q.Release(hq))
	assert.ErrorIs(t, q.Release(hq), core.ErrBadHandle)
}
