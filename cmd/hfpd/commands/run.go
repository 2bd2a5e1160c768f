package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/bluez"
	"github.com/haivivi/hfpag/pkg/broadcast"
	"github.com/haivivi/hfpag/pkg/headset"
	"github.com/haivivi/hfpag/pkg/hfp"
	"github.com/haivivi/hfpag/pkg/priority"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the audio gateway daemon",
	Long: `Run the audio gateway daemon.

The daemon registers the hands-free audio gateway profile with BlueZ on
the system bus and serves, on the listen address:

  GET  /events                      WebSocket event stream (?codec=json|msgpack)
  GET  /status                      service snapshot
  POST /devices/{addr}/connect      connect a device
  POST /devices/{addr}/disconnect   disconnect a device
  POST /devices/{addr}/active       make a device the active one
  PUT  /devices/{addr}/priority     set a device priority
  POST /audio/connect|disconnect    open or close audio on the active device
  POST /virtual-call/start|stop     route audio through a virtual call
  POST /battery                     report the battery level

Device priorities are kept in a BadgerDB database under data_dir, or in
memory when no data_dir is configured.

Examples:
  hfpd run
  hfpd run --adapter hci1 --max-connections 2 --listen :7723`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		st, err := resolveSettings(cmd, ctx)
		if err != nil {
			return err
		}
		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDaemon(sigCtx, st)
	},
}

func init() {
	addRunFlags(runCmd)
}

// addRunFlags declares the flags resolveSettings reads.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("adapter", "", "local Bluetooth adapter (default hci0)")
	cmd.Flags().Int("channel", 0, "RFCOMM channel of the audio gateway profile (default 13)")
	cmd.Flags().Int("max-connections", 0, "devices connected at the same time (1-5)")
	cmd.Flags().Bool("inband-ringing", true, "play ring tones in band when one device is connected")
	cmd.Flags().String("listen", "", "HTTP address of the event hub and API (default "+defaultListen+")")
	cmd.Flags().String("data-dir", "", "directory of the priority database (default: in memory)")
	cmd.Flags().String("operator", "", "network operator reported to devices")
	cmd.Flags().String("number", "", "subscriber number reported to devices")
}

// openPriorityStore opens the badger store under dir, or an in-memory
// store when dir is empty.
func openPriorityStore(dir string) (priority.Store, error) {
	if dir == "" {
		slog.Warn("no data dir configured, device priorities are not persisted")
		return priority.NewMemory(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := priority.NewBadger(priority.BadgerOptions{Dir: dir})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func runDaemon(ctx context.Context, st daemonSettings) error {
	store, err := openPriorityStore(st.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	backend, err := bluez.Open(bluez.Config{
		Adapter: st.Adapter,
		Channel: st.Channel,
	})
	if err != nil {
		return fmt.Errorf("open bluez: %w", err)
	}
	defer backend.Close()

	hub := broadcast.NewHub(broadcast.HubConfig{})
	defer hub.Close()

	tel := newIdleTelephony(st.Operator, st.SubscriberNumber)
	cfg := headset.DefaultConfig()
	cfg.MaxConnections = st.MaxConnections
	cfg.InbandRingingSupported = st.InbandRinging
	cfg.Logger = headset.SlogLogger(slog.Default())

	svc, err := headset.New(cfg, headset.Options{
		Native:    backend,
		Adapter:   backend,
		Telephony: tel,
		Audio:     logAudio{},
		Publisher: broadcast.NewPublisher(broadcast.Multi(broadcast.Slog(nil), hub)),
		Priority:  store,
	})
	if err != nil {
		return err
	}
	tel.attach(svc)
	backend.SetHandler(func(ev hfp.StackEvent) {
		if err := svc.StackEvent(ev); err != nil {
			slog.Warn("stack event dropped", "type", ev.Type, "device", ev.Device, "error", err)
		}
	})

	if err := svc.Start(); err != nil {
		return err
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			slog.Error("stop service", "error", err)
		}
	}()

	go func() {
		err := backend.WatchBondState(ctx, svc.BondStateChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("bond watch stopped", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", st.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", st.Listen, err)
	}
	srv := &http.Server{
		Handler:           newAPIServer(svc, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	slog.Info("hfpd running",
		"adapter", st.Adapter,
		"listen", ln.Addr().String(),
		"max_connections", st.MaxConnections,
		"inband_ringing", st.InbandRinging,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// Close subscriptions first; Shutdown does not wait for hijacked conns.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	return nil
}
