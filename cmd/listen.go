package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/bridge"
	"github.com/crystaldolphin/pusherbridge/internal/config"
	"github.com/crystaldolphin/pusherbridge/internal/dependency"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
	"github.com/crystaldolphin/pusherbridge/internal/transport/memory"
	"github.com/crystaldolphin/pusherbridge/internal/transport/pusherws"
)

var (
	listenDryRun  bool
	listenMetrics bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to Pusher and print actions as JSON lines",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().BoolVar(&listenDryRun, "dry-run", false, "Use the in-memory transport: connect, bind, print and exit")
	listenCmd.Flags().BoolVar(&listenMetrics, "metrics", false, "Serve Prometheus metrics (overrides metrics.enabled)")
}

func runListen(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Pusher.AppKey == "" && !listenDryRun {
		return fmt.Errorf("no pusher.appKey configured: edit %s", cfgPath)
	}

	c, err := dependency.New(cfg, dependency.Params{
		Logger:     slog.Default(),
		DryRun:     listenDryRun,
		ConfigPath: cfgPath,
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printActions(os.Stdout, c.ActionBus().Subscribe(), done)
	}()
	defer func() {
		close(done)
		<-printed
	}()

	sock, err := c.Bridge().Start(transport.Options{})
	if err != nil {
		return err
	}
	for _, k := range c.Subscriptions() {
		c.Bridge().Subscribe(k.Channel, k.Event, k.ActionType)
	}
	slog.Info("listen: subscriptions queued", "count", len(c.Subscriptions()))

	if mem, ok := sock.(*memory.Socket); ok {
		dryRun(slog.Default(), c.Bridge(), mem)
		return nil
	}

	ws, ok := sock.(*pusherws.Socket)
	if !ok {
		return fmt.Errorf("unexpected socket type %T", sock)
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ws.Run(gctx) })
	if listenMetrics || cfg.Metrics.Enabled {
		addr := cfg.Metrics.Addr()
		slog.Info("listen: serving metrics", "addr", addr)
		g.Go(func() error { return c.Metrics().Serve(gctx, addr) })
	}

	fmt.Fprintf(os.Stderr, "%s Listening on %s. Press Ctrl+C to stop.\n", logo, ws.URL())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(os.Stderr, "\nShutdown complete.")
	return nil
}

// dryRun connects the in-memory socket so queued subscriptions bind, reports
// what got bound, then disconnects.
func dryRun(log *slog.Logger, b *bridge.Bridge, mem *memory.Socket) {
	mem.Connect()
	log.Info("listen: dry-run connected", "socket_id", mem.ID(), "app_key", mem.AppKey())
	for _, k := range b.Bindings() {
		log.Info("listen: bound", "socket_id", mem.ID(), "channel", k.Channel, "event", k.Event, "actionType", k.ActionType)
	}
	mem.Disconnect()
}

// printActions writes each action as one JSON line until done is closed,
// then flushes whatever is still buffered.
func printActions(w io.Writer, ch <-chan action.Action, done <-chan struct{}) {
	enc := json.NewEncoder(w)
	write := func(a action.Action) {
		if err := enc.Encode(a); err != nil {
			slog.Warn("listen: write action", "type", a.Type, "err", err)
		}
	}
	for {
		select {
		case a := <-ch:
			write(a)
		case <-done:
			for {
				select {
				case a := <-ch:
					write(a)
				default:
					return
				}
			}
		}
	}
}
