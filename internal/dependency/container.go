// Package dependency wires core pusherbridge services using go.uber.org/dig.
package dependency

import (
	"log/slog"
	"path/filepath"

	"go.uber.org/dig"

	"github.com/crystaldolphin/pusherbridge/internal/bridge"
	"github.com/crystaldolphin/pusherbridge/internal/bus"
	"github.com/crystaldolphin/pusherbridge/internal/config"
	"github.com/crystaldolphin/pusherbridge/internal/metrics"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
	"github.com/crystaldolphin/pusherbridge/internal/transport/memory"
	"github.com/crystaldolphin/pusherbridge/internal/transport/pusherws"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg       *config.Config
	store     *bus.Store
	actionBus *bus.ActionBus
	collector *metrics.Collector
	bridge    *bridge.Bridge
	subs      []bridge.Key
}

func (c *Container) Config() *config.Config      { return c.cfg }
func (c *Container) Store() *bus.Store           { return c.store }
func (c *Container) ActionBus() *bus.ActionBus   { return c.actionBus }
func (c *Container) Metrics() *metrics.Collector { return c.collector }
func (c *Container) Bridge() *bridge.Bridge      { return c.bridge }
func (c *Container) Subscriptions() []bridge.Key { return c.subs }

// DryRun selects the in-memory transport instead of the websocket one.
type DryRun bool

// ConfigDir is the directory relative subscription manifests resolve against.
type ConfigDir string

// Params are the inputs New needs besides the config.
type Params struct {
	Logger     *slog.Logger
	DryRun     bool
	ConfigPath string
}

// New builds and wires all core services from cfg.
// The bridge is created delayed; callers Start it once they are ready to
// receive actions.
func New(cfg *config.Config, p Params) (*Container, error) {
	d := dig.New()

	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	cfgPath := p.ConfigPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() *slog.Logger { return log }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() DryRun { return DryRun(p.DryRun) }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() ConfigDir { return ConfigDir(filepath.Dir(cfgPath)) }); err != nil {
		return nil, err
	}
	if err := d.Provide(newStore); err != nil {
		return nil, err
	}
	if err := d.Provide(newActionBus); err != nil {
		return nil, err
	}
	if err := d.Provide(metrics.New); err != nil {
		return nil, err
	}
	if err := d.Provide(newDispatcher); err != nil {
		return nil, err
	}
	if err := d.Provide(newTransportFactory); err != nil {
		return nil, err
	}
	if err := d.Provide(newBridge); err != nil {
		return nil, err
	}
	if err := d.Provide(resolveSubscriptions); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		store *bus.Store,
		actionBus *bus.ActionBus,
		collector *metrics.Collector,
		b *bridge.Bridge,
		subs []bridge.Key,
	) {
		result = &Container{
			cfg:       cfg,
			store:     store,
			actionBus: actionBus,
			collector: collector,
			bridge:    b,
			subs:      subs,
		}
	})
	return result, err
}

func newStore() *bus.Store {
	return bus.NewStore(nil)
}

func newActionBus(cfg *config.Config) *bus.ActionBus {
	return bus.NewActionBus(max(cfg.Bridge.ActionBuffer, 0))
}

func newDispatcher(store *bus.Store, ab *bus.ActionBus, m *metrics.Collector) bridge.Dispatcher {
	return m.Instrument(bus.Tee{store, ab})
}

func newTransportFactory(dry DryRun, log *slog.Logger) transport.Factory {
	if dry {
		return memory.Factory
	}
	return pusherws.Factory(log)
}

func newBridge(
	cfg *config.Config,
	store bridge.Dispatcher,
	factory transport.Factory,
	m *metrics.Collector,
	log *slog.Logger,
) (*bridge.Bridge, error) {
	opts, err := cfg.Bridge.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, bridge.WithLogger(log))

	b := bridge.Delay(store, factory, cfg.Pusher.AppKey, cfg.Pusher.TransportOptions(), opts...)
	m.WatchBridge(b, func() int { return len(b.Bindings()) })
	return b, nil
}

func resolveSubscriptions(cfg *config.Config, dir ConfigDir) ([]bridge.Key, error) {
	return cfg.ResolveSubscriptions(string(dir))
}
