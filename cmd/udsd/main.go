package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/welterm/udsd/internal/config"
	"codeberg.org/welterm/udsd/internal/endpoint"
	"codeberg.org/welterm/udsd/internal/errors"
	"codeberg.org/welterm/udsd/internal/logger"
	"codeberg.org/welterm/udsd/internal/nut"
	"codeberg.org/welterm/udsd/internal/onewire"
	"codeberg.org/welterm/udsd/internal/pid"
	"codeberg.org/welterm/udsd/internal/scheduler"
	"codeberg.org/welterm/udsd/internal/sender"
	"codeberg.org/welterm/udsd/internal/store"
)

var cfg *config.Config

func init() {
	config.ParseFlags()

	var err error
	cfg, err = config.Load()
	if err != nil {
		var domainErr errors.Error
		if errors.As(err, &domainErr) && domainErr.Code() == errors.ErrDefaultConfigWritten {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, cfg.Log.Console, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("Daemon failed")
		os.Exit(1)
	}
}

func run() error {
	if err := pid.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	logger.Info().
		Bool("one_wire", cfg.OneWire.Enabled).
		Bool("ups_monitoring", cfg.UPSMonitoring.Enabled).
		Bool("active_data_sender", cfg.ActiveSender.Enabled).
		Bool("passive_data_endpoint", cfg.PassiveEndpoint.Enabled).
		Msg("Starting udsd")

	st := store.New()
	sched := scheduler.New()

	if cfg.OneWire.Enabled {
		poller := onewire.NewPoller(onewire.NewSysfsReader(cfg.OneWire.BasePath), st, cfg.OneWire.EvictStale)
		sched.Add(scheduler.Task{
			Name:     "one_wire",
			Cooldown: cfg.OneWire.PollCooldown(),
			Run:      poller.Cycle,
		})
	}

	if cfg.UPSMonitoring.Enabled {
		poller := nut.NewPoller(cfg.UPSMonitoring.Servers, st)
		defer poller.Close()
		sched.Add(scheduler.Task{
			Name:     "ups_monitoring",
			Cooldown: cfg.UPSMonitoring.PollCooldown(),
			Run:      poller.Cycle,
		})
	}

	if cfg.ActiveSender.Enabled {
		s := sender.New(cfg.ActiveSender, st)
		sched.Add(scheduler.Task{
			Name:     "active_data_sender",
			Cooldown: cfg.ActiveSender.SendCooldown(),
			Run:      s.Cycle,
		})
	}

	errCh := make(chan error, 1)
	endpointDone := make(chan struct{})
	if cfg.PassiveEndpoint.Enabled {
		srv := endpoint.New(cfg.PassiveEndpoint, st)
		go func() {
			defer close(endpointDone)
			if err := srv.Run(ctx); err != nil {
				errCh <- err
				cancel()
			}
		}()
	} else {
		close(endpointDone)
	}

	// With no scheduled tasks Run returns at once; the daemon still
	// stays up for the endpoint until it is told to stop.
	sched.Run(ctx)
	<-ctx.Done()
	<-endpointDone

	select {
	case err := <-errCh:
		return err
	default:
	}

	logger.Info().Msg("Exiting...")

	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
