// lobbyclient/cmd/client/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"lobbyclient/internal/config"
	"lobbyclient/internal/console"
	"lobbyclient/internal/launcher"
	"lobbyclient/internal/lobby"
	"lobbyclient/internal/logging"
	"lobbyclient/internal/network"
	"lobbyclient/internal/notify"
	"lobbyclient/internal/services/cluster"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lobbyclient:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("lobbyclient", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	// a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load(flags.ConfigPath(), os.Getenv)
	if err != nil {
		return err
	}
	if err := flags.Apply(cfg); err != nil {
		return err
	}

	log, closeLog, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lobbyAddr := resolveLobby(ctx, cfg, log)
	log.Info("[Main] lobby endpoint", zap.String("addr", lobbyAddr), zap.String("transport", cfg.Transport))

	dialer := network.Dialer{
		Transport: network.Transport(cfg.Transport),
		Address:   lobbyAddr,
		Timeout:   cfg.DialTimeout,
	}
	requester := network.NewRequester(dialer, cfg.RequestTimeout, log)

	events := newPublisher(cfg, log)
	defer events.Close()

	screen := console.NewScreen(os.Stdout)
	a := &app{
		cfg:       cfg,
		log:       log,
		lobbyAddr: lobbyAddr,
		requester: requester,
		lobby:     lobby.New(requester, log),
		launcher:  launcher.New(cfg.DownloadsDir, log, launcherOptions(cfg)...),
		screen:    screen,
		input:     console.NewInput(os.Stdin),
		events:    events,
	}

	err = a.run(ctx)
	if ctx.Err() != nil {
		// interrupted: release the token so the account can log in again
		a.logoutOnExit()
		screen.Printf("\nbye\n")
		return nil
	}
	return err
}

// resolveLobby asks Consul when discovery is configured and falls back to
// the static rules.
func resolveLobby(ctx context.Context, cfg *config.Config, log *zap.Logger) string {
	if cfg.Discovery.ConsulAddr != "" && cfg.LobbyAddr == "" {
		mode, err := cluster.ParseMode(cfg.Discovery.Mode)
		if err == nil {
			addr, derr := cluster.Discover(ctx, cfg.Discovery.Service, cfg.Discovery.ConsulAddr,
				cluster.DiscoveryOptions{Mode: mode, SpecificID: cfg.Discovery.InstanceID}, log)
			if derr == nil {
				return addr
			}
			err = derr
		}
		log.Warn("[Main] consul discovery failed, using static endpoint", zap.Error(err))
	}
	return cfg.ResolveLobby(os.Getenv, config.TCPProbe)
}

func launcherOptions(cfg *config.Config) []launcher.Option {
	opts := []launcher.Option{launcher.WithInterpreter(cfg.Interpreter)}
	if cfg.GameStdin == config.GameStdinInherit {
		opts = append(opts, launcher.WithTerminalInput())
	}
	return opts
}

func newPublisher(cfg *config.Config, log *zap.Logger) notify.Publisher {
	if cfg.Notify.NATSURL == "" {
		return notify.Nop{}
	}
	p, err := notify.ConnectNATS(cfg.Notify.NATSURL, cfg.Notify.Prefix, log)
	if err != nil {
		log.Warn("[Main] session events disabled", zap.Error(err))
		return notify.Nop{}
	}
	return p
}

var errQuit = errors.New("quit")
