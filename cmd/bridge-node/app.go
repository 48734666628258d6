package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/bridge"
    "github.com/hone-labs/comms-bridge/pkg/config"
    "github.com/hone-labs/comms-bridge/pkg/netstack"
    "github.com/hone-labs/comms-bridge/pkg/observability"
    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Watch(opts.ConfigPath, func(next *config.Config) {
        zap.L().Info("configuration reloaded", zap.Any("config", next))
    })
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.Setup(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("bridge-node started",
        zap.String("app", cfg.AppName), zap.String("instance", cfg.InstanceID))
    zap.L().Info("effective configuration", zap.Any("config", cfg))

    b := bridge.New(cfg.InstanceID, logger)
    b.SetReplyTimeout(cfg.Send.Timeout())
    registerHandlers(b, cfg.InstanceID)

    closeAll, err := netstack.Register(b, cfg.Transports, codec.NewRegistry(), logger)
    if err != nil {
        zap.L().Warn("some transports failed to start", zap.Error(err))
    }

    zap.L().Info("node is running; press Ctrl+C to exit")
    sig := make(chan os.Signal, 1)
    signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
    s := <-sig
    zap.L().Info("shutting down", zap.String("signal", s.String()))

    closeAll()
    if err := b.Close(); err != nil {
        zap.L().Warn("close", zap.Error(err))
    }
    return 0
}

// registerHandlers installs the built-in message handlers every node serves.
func registerHandlers(b *bridge.Bridge, instanceID string) {
    b.Respond("ping", func(ctx context.Context, payload any) (any, error) {
        return map[string]any{
            "pong":     true,
            "instance": instanceID,
            "ts":       time.Now().UnixMilli(),
        }, nil
    })
    b.Respond("echo", func(ctx context.Context, payload any) (any, error) {
        return payload, nil
    })
}
