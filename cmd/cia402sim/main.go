// Command cia402sim runs one or more CiA-402 drive-profile slave node
// emulators against a single CAN bus, per the configuration file given
// with --config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samsamfire/cia402drivesim/internal/can"
	_ "github.com/samsamfire/cia402drivesim/internal/can/socketcan"
	"github.com/samsamfire/cia402drivesim/internal/config"
	"github.com/samsamfire/cia402drivesim/internal/node"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cia402sim",
		Short:         "Emulate one or more CiA-402 drive-profile CANopen slave nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a configuration file and run the configured nodes until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the TOML configuration file (required)")
	cmd.MarkFlagRequired("config")
	return cmd
}

// logLevelFromEnv reads CIA402SIM_LOG_LEVEL (debug/info/warn/error,
// case-insensitive), defaulting to info.
func logLevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("CIA402SIM_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevelFromEnv()}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("cia402sim: %w", err)
	}

	// bus.interface names a Linux SocketCAN interface (real or vcanN); the
	// in-process "virtual" transport is exercised directly by tests only.
	bus, err := can.NewBus("socketcan", cfg.Bus.Interface)
	if err != nil {
		return fmt.Errorf("cia402sim: failed to open bus: %w", err)
	}
	if err := bus.Connect(); err != nil {
		return fmt.Errorf("cia402sim: failed to connect bus: %w", err)
	}
	defer bus.Disconnect()

	nodes := make([]*node.Node, 0, len(cfg.Node))
	for _, nc := range cfg.Node {
		edsContent, err := os.ReadFile(nc.EDSFile)
		if err != nil {
			return fmt.Errorf("cia402sim: node %d: failed to read eds file: %w", nc.NodeID, err)
		}
		n, err := node.NewFromConfig(bus, logger, nc, edsContent, cfg.General.SpeedFactor)
		if err != nil {
			return fmt.Errorf("cia402sim: node %d: failed to build node: %w", nc.NodeID, err)
		}
		nodes = append(nodes, n)
	}

	dispatch := can.FrameListenerFunc(func(frame can.Frame) {
		for _, n := range nodes {
			n.Handle(frame)
		}
	})
	if err := bus.Subscribe(dispatch); err != nil {
		return fmt.Errorf("cia402sim: failed to subscribe to bus: %w", err)
	}

	for _, n := range nodes {
		n.Boot()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n *node.Node) {
			defer wg.Done()
			n.Run(ctx)
		}(n)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("cia402sim running", "nodes", len(nodes), "interface", cfg.Bus.Interface)
	<-sigCh

	logger.Info("shutdown signal received")
	cancel()
	wg.Wait()
	return nil
}
