package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	daq "github.com/ac-lgad/daq_go/pkg"
)

func main() {
	cmd := &cli.Command{
		Name:  "daq",
		Usage: "Multi-digitizer waveform acquisition",
		Commands: []*cli.Command{
			runCmd(),
			createConfigCmd(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start an acquisition run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "daq_config.json",
				Usage:   "Path to the acquisition configuration file",
			},
			&cli.BoolFlag{
				Name:  "simulate",
				Usage: "Run against simulated digitizers instead of hardware",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (DEBUG, INFO, WARNING, ERROR)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDAQ(ctx, cmd.String("config"), cmd.Bool("simulate"), cmd.String("log-level"))
		},
	}
}

func createConfigCmd() *cli.Command {
	return &cli.Command{
		Name:  "create-config",
		Usage: "Write an example configuration file and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "daq_config.json",
				Usage:   "Path of the configuration file to create",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("refusing to overwrite existing %s", path)
			}
			config := daq.ExampleConfiguration()
			if err := config.Save(path); err != nil {
				return err
			}
			fmt.Println("Example configuration written to", path)
			return nil
		},
	}
}

func runDAQ(ctx context.Context, configPath string, simulate bool, logLevel string) error {
	config, err := daq.LoadConfiguration(configPath)
	if err != nil {
		return fmt.Errorf("error reading configuration file: %w", err)
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if simulate {
		config.DAQ.Simulate = true
	}

	logger, err := daq.SetupLogging(config.Logging)
	if err != nil {
		return err
	}
	logger.Info("DAQ starting", "module", "main")
	daq.PrintConfiguration(config, logger)

	if !config.DAQ.Simulate {
		return fmt.Errorf("no hardware backend is compiled into this build, run with --simulate")
	}

	orch := daq.NewOrchestrator(config, daq.SimulatedFactory, logger)
	if err := orch.Initialize(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	for _, c := range orch.Statistics().Collectors() {
		registry.MustRegister(c)
	}

	if config.Monitor.Enabled {
		display := daq.NewDisplayQueue(config.Monitor, logger)
		registry.MustRegister(display.Collector())
		orch.SetDisplay(display)
		go consumeDisplay(display, config.Monitor, logger)
		defer display.Close()
	}

	if config.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			logger.Info(fmt.Sprintf("Metrics listening on %s", config.Metrics.Addr), "module", "main")
			if err := http.ListenAndServe(config.Metrics.Addr, mux); err != nil {
				logger.Warn(fmt.Sprintf("Metrics listener stopped: %v", err), "module", "main")
			}
		}()
	}

	rundb, err := daq.ConnectRunDB(config.Database, logger)
	if err != nil {
		logger.Warn(fmt.Sprintf("Continuing without run database: %v", err), "module", "main")
	} else if rundb != nil {
		orch.SetRunDB(rundb)
		defer rundb.Close()
	}

	var configFiles []string
	for _, d := range config.EnabledDigitizers() {
		configFiles = append(configFiles, d.ConfigFile)
	}
	watcher, err := daq.NewConfigWatcher(configFiles, logger)
	if err != nil {
		logger.Warn(fmt.Sprintf("Configuration watching disabled: %v", err), "module", "main")
	} else {
		defer watcher.Close()
		go watcher.WatchAndReload(ctx, orch)
	}

	go handleSignals(ctx, orch, logger)

	return orch.Run(ctx)
}

// handleSignals maps the process control surface onto orchestrator actions:
// INT/TERM end the run, HUP reloads device configurations, USR1 toggles
// acquisition, USR2 forces a statistics report.
func handleSignals(ctx context.Context, orch *daq.Orchestrator, logger *slog.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info(fmt.Sprintf("Received %s, shutting down", sig), "module", "main")
				orch.Signals().RequestQuit()
				return
			case syscall.SIGHUP:
				logger.Info("Received SIGHUP, reloading configurations", "module", "main")
				if err := orch.Reload(ctx); err != nil {
					logger.Error(fmt.Sprintf("Reload failed: %v", err), "module", "main")
				}
			case syscall.SIGUSR1:
				logger.Info("Received SIGUSR1, toggling acquisition", "module", "main")
				if err := orch.Toggle(ctx); err != nil {
					logger.Error(fmt.Sprintf("Toggle failed: %v", err), "module", "main")
				}
			case syscall.SIGUSR2:
				orch.Statistics().Report(true)
			}
		}
	}
}

// consumeDisplay drains the monitor queue, logging a waveform summary for
// the configured channels at most once per update interval.
func consumeDisplay(q *daq.DisplayQueue, cfg daq.MonitorConfig, logger *slog.Logger) {
	interval := time.Duration(cfg.UpdateIntervalMs) * time.Millisecond
	last := time.Now()

	wanted := make(map[int]bool, len(cfg.DisplayChannels))
	for _, ch := range cfg.DisplayChannels {
		wanted[ch] = true
	}

	for frame := range q.Frames() {
		if time.Since(last) < interval {
			continue
		}
		last = time.Now()

		for _, ch := range frame.Record.Channels {
			globalID := daq.GlobalChannelID(ch.Group, ch.ChannelInGroup, 9)
			if !wanted[globalID] || len(ch.Samples) == 0 {
				continue
			}
			min, max := ch.Samples[0], ch.Samples[0]
			for _, s := range ch.Samples {
				if s < min {
					min = s
				}
				if s > max {
					max = s
				}
			}
			logger.Debug(fmt.Sprintf("Monitor digitizer %d ch %d: event %d, %d samples, min %.3f max %.3f",
				frame.DeviceID, globalID, frame.Record.EventNumber, len(ch.Samples), min, max),
				"module", "monitor")
		}
	}
}
