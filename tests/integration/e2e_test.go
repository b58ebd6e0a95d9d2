package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/Transit/internal/bridge"
	"github.com/GriffinCanCode/Transit/internal/call"
	"github.com/GriffinCanCode/Transit/internal/config"
	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/registry"
	"github.com/GriffinCanCode/Transit/internal/server"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

const (
	codeGreet = 1
	codeAdd   = 2
)

// startDaemon assembles a full daemon from configuration and serves its
// debug surface (bridge included) over httptest.
func startDaemon(t *testing.T, cfg *config.Config) (*server.Server, *httptest.Server) {
	t.Helper()
	srv, err := server.New(cfg, nil)
	require.NoError(t, err)
	h := srv.DebugHandler()
	require.NotNil(t, h)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return srv, ts
}

func greeterStub() *call.Stub {
	return call.NewStub("greeter", nil).
		Handle(codeGreet, func(ctx context.Context, in *wire.Reader, out *wire.Writer) error {
			name, err := in.ReadString()
			if err != nil {
				return err
			}
			out.WriteString("hello " + name)
			return nil
		}).
		Handle(codeAdd, func(ctx context.Context, in *wire.Reader, out *wire.Writer) error {
			a, err := in.ReadInt64()
			if err != nil {
				return err
			}
			b, err := in.ReadInt64()
			if err != nil {
				return err
			}
			out.WriteInt64(a + b)
			return nil
		})
}

// TestDaemonEndToEnd runs the whole path: an in-process service publishes
// through the registry, a remote peer attaches over the websocket bridge,
// calls it, and the debug surface reports all of it.
func TestDaemonEndToEnd(t *testing.T) {
	srv, ts := startDaemon(t, config.Default())

	// In-process service.
	ch, err := srv.Router().Open(1000)
	require.NoError(t, err)
	defer ch.Close()
	h, err := ch.Register(greeterStub())
	require.NoError(t, err)
	require.NoError(t, registry.NewClient(ch).Publish("greeter", h))

	// Remote peer over the bridge.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := bridge.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/attach")
	require.NoError(t, err)
	defer peer.Close()

	rh, err := peer.Lookup("greeter")
	require.NoError(t, err)

	w := wire.NewWriter()
	w.WriteString("remote")
	rep, err := peer.Call(rh, codeGreet, w)
	require.NoError(t, err)
	got, err := rep.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello remote", got)

	w = wire.NewWriter()
	w.WriteInt64(40)
	w.WriteInt64(2)
	rep, err = peer.Call(rh, codeAdd, w)
	require.NoError(t, err)
	sum, err := rep.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)

	// Debug surface sees the service and the attached processes.
	resp, err := http.Get(ts.URL + "/services")
	require.NoError(t, err)
	defer resp.Body.Close()
	var services struct {
		Services []string `json:"services"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&services))
	assert.Contains(t, services.Services, "greeter")

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats core.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	// registry + local service + bridge peer
	assert.GreaterOrEqual(t, stats.Processes, 3)
}

// TestDaemonDeathAcrossBridge: a remote watcher observes the death of an
// in-process service.
func TestDaemonDeathAcrossBridge(t *testing.T) {
	srv, ts := startDaemon(t, config.Default())

	ch, err := srv.Router().Open(1000)
	require.NoError(t, err)
	h, err := ch.Register(greeterStub())
	require.NoError(t, err)
	require.NoError(t, registry.NewClient(ch).Publish("greeter", h))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := bridge.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/attach")
	require.NoError(t, err)
	defer peer.Close()

	rh, err := peer.Lookup("greeter")
	require.NoError(t, err)

	died := make(chan struct{})
	_, err = peer.LinkToDeath(rh, func(uint32) { close(died) })
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	select {
	case <-died:
	case <-time.After(3 * time.Second):
		t.Fatal("remote watcher never observed service death")
	}

	// The registry dropped the corpse too.
	require.Eventually(t, func() bool {
		_, err := peer.Lookup("greeter")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

// TestDaemonPolicyFile: a policy file loaded at assembly gates publishing.
func TestDaemonPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_allow = true

[[service]]
name = "sealed"
publish_uids = [0]
call_uids = [0]
`), 0o600))

	cfg := config.Default()
	cfg.Policy.Path = path
	srv, _ := startDaemon(t, cfg)

	ch, err := srv.Router().Open(1000)
	require.NoError(t, err)
	defer ch.Close()

	h, err := ch.Register(greeterStub())
	require.NoError(t, err)
	err = registry.NewClient(ch).Publish("sealed", h)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	require.NoError(t, registry.NewClient(ch).Publish("open", h))
}
