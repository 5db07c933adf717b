package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-sync/internal/client"
	"go-pos-sync/internal/config"
	"go-pos-sync/internal/localstore"
	"go-pos-sync/internal/logging"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/notify"
	"go-pos-sync/internal/syncer"
	"go-pos-sync/internal/terminal"
	"go-pos-sync/internal/utils"
)

const usage = `usage: terminal <command> [-config profile.yaml] [flags]

commands:
  run        sync in the background until interrupted
  push       send queued operations once
  pull       merge the back-office snapshot once
  full-sync  overwrite the back office with local data (needs -yes)
  status     show queue length, record counts and connectivity`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	profile := fs.String("config", "", "terminal profile YAML file")
	confirm := fs.Bool("yes", false, "confirm full-sync overwrite")
	fs.Parse(os.Args[2:])

	config.LoadEnv()
	log := logging.Setup("terminal")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cmd, *profile, *confirm); err != nil {
		log.Error("terminal command failed", "command", cmd, "err", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Terminal
	peer   *terminal.Peer
	engine *syncer.Engine
}

func open(log *slog.Logger, profile string) (*app, error) {
	cfg, err := config.TerminalFromFile(profile)
	if err != nil {
		return nil, err
	}
	if cfg.PeerID == "" {
		cfg.PeerID = utils.DeviceID("TERM")
	}

	store, err := localstore.Open(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	printer := logPrinter{log: log}
	peer, err := terminal.Open(terminal.Options{
		PeerID:  cfg.PeerID,
		Store:   store,
		Logger:  log,
		Printer: printer,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	// A nil Transport keeps the engine idle until the terminal is configured.
	var transport syncer.Transport
	if cfg.Resolved() {
		transport = client.New(cfg.BackOfficeURL, cfg.APIKey, client.WithTimeout(cfg.RequestTimeout))
	} else {
		log.Warn("back office not configured, working offline", "profile", cfg.Profile)
	}
	engine := syncer.New(peer, transport, cfg.Interval,
		syncer.WithLogger(log),
		syncer.WithReceiptPrinter(printer),
	)
	return &app{cfg: cfg, peer: peer, engine: engine}, nil
}

func run(ctx context.Context, log *slog.Logger, cmd, profile string, confirm bool) error {
	a, err := open(log, profile)
	if err != nil {
		return err
	}
	defer a.peer.Close()

	switch cmd {
	case "run":
		if a.cfg.Notifications && a.cfg.Resolved() {
			go notify.Listen(ctx, notify.WebSocketURL(a.cfg.BackOfficeURL), a.cfg.APIKey, 15*time.Second, log,
				func(ev notify.Event) {
					log.Debug("back office changed", "collections", ev.Collections)
					a.engine.Trigger()
				})
		}
		log.Info("🚀 terminal syncing", "peer", a.peer.ID(), "profile", a.cfg.Profile, "interval", a.cfg.Interval)
		a.engine.Run(ctx)
		st := a.engine.Status()
		log.Info("terminal stopped", "online", st.Online, "last_sync", st.LastSync)
		return nil

	case "push":
		n, err := a.engine.Push(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pushed %d operation(s)\n", n)
		return nil

	case "pull":
		report, err := a.engine.Pull(ctx)
		if err != nil {
			return err
		}
		for name, stats := range report.Collections {
			fmt.Printf("%-16s %s\n", name, stats)
		}
		if report.ConfigUpdated {
			fmt.Println("business setup updated")
		}
		return nil

	case "full-sync":
		resp, err := a.engine.FullSync(ctx, confirm)
		if errors.Is(err, syncer.ErrNotConfirmed) {
			return fmt.Errorf("%w: rerun with -yes", err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("sent %d record(s), %d rejected\n", len(resp.Results), resp.Failed())
		return nil

	case "status":
		return printStatus(ctx, a)

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func printStatus(ctx context.Context, a *app) error {
	snap, err := a.peer.Snapshot(ctx)
	if err != nil {
		return err
	}
	queued, err := a.peer.QueueLen(ctx)
	if err != nil {
		return err
	}
	low, err := a.peer.LowStock(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("peer          %s (%s)\n", a.peer.ID(), a.cfg.Profile)
	fmt.Printf("back office   %s\n", a.cfg.BackOfficeURL)
	fmt.Printf("queued ops    %d\n", queued)
	fmt.Printf("products      %d (%d low)\n", len(snap.Products), len(low))
	fmt.Printf("transactions  %d\n", len(snap.Transactions))
	fmt.Printf("customers     %d\n", len(snap.CreditCustomers))

	if a.cfg.Resolved() {
		c := client.New(a.cfg.BackOfficeURL, a.cfg.APIKey)
		if err := c.Ping(ctx); err != nil {
			fmt.Printf("connectivity  offline (%v)\n", err)
		} else {
			fmt.Println("connectivity  online")
		}
	}
	return nil
}

// logPrinter stands in for a receipt printer by logging the receipt.
type logPrinter struct{ log *slog.Logger }

func (p logPrinter) PrintReceipt(_ context.Context, tx models.Transaction) error {
	p.log.Info("🧾 receipt", "transaction", tx.ID, "items", len(tx.Items), "total", tx.Total, "method", tx.PaymentMethod)
	return nil
}
