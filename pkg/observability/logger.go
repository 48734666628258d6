// Package observability contains logging setup shared by the bridge binaries.
package observability

import (
    "os"
    "path/filepath"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"

    "github.com/hone-labs/comms-bridge/pkg/config"
)

// Setup builds a zap.Logger from the provided configuration, installs it as
// the global logger, and redirects the stdlib log package. The caller should
// defer logger.Sync().
func Setup(c config.LogConfig) (*zap.Logger, error) {
    level := zap.NewAtomicLevelAt(parseLevel(c.Level))
    encoder := newEncoder(c)

    cores := make([]zapcore.Core, 0, len(c.Outputs))
    for _, out := range c.Outputs {
        cores = append(cores, zapcore.NewCore(encoder, sinkFor(out, c), level))
    }

    opts := []zap.Option{
        zap.AddCaller(),
        zap.AddStacktrace(zap.ErrorLevel),
    }
    if c.Development {
        opts = append(opts, zap.Development())
    }

    logger := zap.New(zapcore.NewTee(cores...), opts...)
    zap.ReplaceGlobals(logger)
    _, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
    return logger, nil
}

func parseLevel(s string) zapcore.Level {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "debug":
        return zap.DebugLevel
    case "warn", "warning":
        return zap.WarnLevel
    case "error":
        return zap.ErrorLevel
    default:
        return zap.InfoLevel
    }
}

func newEncoder(c config.LogConfig) zapcore.Encoder {
    var encCfg zapcore.EncoderConfig
    if c.Development {
        encCfg = zap.NewDevelopmentEncoderConfig()
        encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
    } else {
        encCfg = zap.NewProductionEncoderConfig()
    }
    if strings.ToLower(c.Format) == "json" {
        return zapcore.NewJSONEncoder(encCfg)
    }
    return zapcore.NewConsoleEncoder(encCfg)
}

// sinkFor maps an output name to a write syncer. Anything that is not
// stdout/stderr is treated as a file path, rotated when rotation is enabled.
func sinkFor(out string, c config.LogConfig) zapcore.WriteSyncer {
    switch strings.ToLower(out) {
    case "stdout":
        return zapcore.AddSync(os.Stdout)
    case "stderr":
        return zapcore.AddSync(os.Stderr)
    }

    if c.Rotation.Enable {
        name := out
        if strings.TrimSpace(c.Rotation.Filename) != "" {
            name = c.Rotation.Filename
        }
        return zapcore.AddSync(&lumberjack.Logger{
            Filename:   name,
            MaxSize:    max(c.Rotation.MaxSizeMB, 10),
            MaxBackups: max(c.Rotation.MaxBackups, 1),
            MaxAge:     max(c.Rotation.MaxAgeDays, 7),
            Compress:   c.Rotation.Compress,
        })
    }

    if dir := filepath.Dir(out); dir != "." {
        _ = os.MkdirAll(dir, 0o755)
    }
    f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil {
        // fallback to stderr on open failure
        return zapcore.AddSync(os.Stderr)
    }
    return zapcore.AddSync(f)
}
