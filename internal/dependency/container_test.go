package dependency

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/bridge"
	"github.com/crystaldolphin/pusherbridge/internal/config"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
	"github.com/crystaldolphin/pusherbridge/internal/transport/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_DryRunWiresStoreBusAndMetrics(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pusher.AppKey = "dry"
	cfg.Subscriptions = []bridge.Key{{Channel: "room1", Event: "message", ActionType: "MSG"}}

	c, err := New(&cfg, Params{Logger: quietLogger(), DryRun: true})
	require.NoError(t, err)
	require.Len(t, c.Subscriptions(), 1)

	sock, err := c.Bridge().Start(transport.Options{})
	require.NoError(t, err)
	mem, ok := sock.(*memory.Socket)
	require.True(t, ok, "dry run must use the memory transport, got %T", sock)
	assert.Equal(t, "dry", mem.AppKey())

	for _, k := range c.Subscriptions() {
		c.Bridge().Subscribe(k.Channel, k.Event, k.ActionType)
	}
	assert.Equal(t, 1, c.Bridge().Pending())

	mem.Connect()
	require.Equal(t, 1, mem.Emit("room1", "message", "hi"))

	var got []action.Action
	for len(got) < 3 {
		got = append(got, <-c.ActionBus().Subscribe())
	}
	assert.Equal(t, action.Connecting, got[0].Type)
	assert.Equal(t, action.Connected, got[1].Type)
	assert.Equal(t, action.ChannelEvent("MSG", "room1", "message", "hi"), got[2])

	assert.Equal(t, transport.StateConnected, c.Store().State().Connection)
	assert.Equal(t, 1, c.Store().State().Messages["MSG"])

	rec := httptest.NewRecorder()
	c.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `pusherbridge_actions_dispatched_total{type="MSG"} 1`)
	assert.Contains(t, rec.Body.String(), "pusherbridge_bindings 1")
	assert.Contains(t, rec.Body.String(), "pusherbridge_ready 1")
}

func TestNew_InvalidReadiness(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bridge.Readiness = "eventually"

	_, err := New(&cfg, Params{Logger: quietLogger(), DryRun: true})
	assert.Error(t, err)
}

func TestNew_ManifestRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	manifest := "subscriptions:\n  - {channel: room2, event: typing, actionType: TYPING}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subs.yaml"), []byte(manifest), 0o600))

	cfg := config.DefaultConfig()
	cfg.SubscriptionsFile = "subs.yaml"

	c, err := New(&cfg, Params{
		Logger:     quietLogger(),
		DryRun:     true,
		ConfigPath: filepath.Join(dir, "config.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, []bridge.Key{{Channel: "room2", Event: "typing", ActionType: "TYPING"}}, c.Subscriptions())
}
