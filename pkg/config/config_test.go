package config

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

func writeConfig(t *testing.T, body string) string {
    t.Helper()
    path := filepath.Join(t.TempDir(), "bridge.yaml")
    if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
        t.Fatalf("write config: %v", err)
    }
    return path
}

func TestLoadFromFile(t *testing.T) {
    path := writeConfig(t, `
app_name: hub-test
instance_id: node-a
log:
  level: debug
  format: json
  outputs: [stderr]
send:
  timeout_ms: 1500
transports:
  - id: uplink
    kind: tcp
    direction: outgoing
    address: "127.0.0.1:7788"
    codec: cbor
  - id: uplink
    kind: tcp
    direction: incoming
    address: ":7788"
    codec: cbor
`)

    cfg, err := Load(path)
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.InstanceID != "node-a" {
        t.Fatalf("instance_id = %q", cfg.InstanceID)
    }
    if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
        t.Fatalf("log config = %+v", cfg.Log)
    }
    if got := cfg.Send.Timeout(); got != 1500*time.Millisecond {
        t.Fatalf("send timeout = %v", got)
    }
    if len(cfg.Transports) != 2 {
        t.Fatalf("transports = %d", len(cfg.Transports))
    }
    if cfg.Transports[0].ID != "uplink" || cfg.Transports[0].Direction != "outgoing" {
        t.Fatalf("transport[0] = %+v", cfg.Transports[0])
    }
}

func TestLoadDefaults(t *testing.T) {
    // point at an empty temp dir so no stray bridge.yaml is picked up
    cwd, err := os.Getwd()
    if err != nil {
        t.Fatalf("getwd: %v", err)
    }
    if err := os.Chdir(t.TempDir()); err != nil {
        t.Fatalf("chdir: %v", err)
    }
    t.Cleanup(func() { os.Chdir(cwd) })

    cfg, err := Load("")
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.InstanceID != "bridge-1" {
        t.Fatalf("default instance_id = %q", cfg.InstanceID)
    }
    if cfg.Log.Level != "info" {
        t.Fatalf("default log.level = %q", cfg.Log.Level)
    }
    if cfg.Send.TimeoutMS != 5000 {
        t.Fatalf("default send.timeout_ms = %d", cfg.Send.TimeoutMS)
    }
}

func TestEnvOverride(t *testing.T) {
    t.Setenv("BRIDGE_LOG_LEVEL", "error")
    t.Setenv("BRIDGE_INSTANCE_ID", "env-node")

    cwd, err := os.Getwd()
    if err != nil {
        t.Fatalf("getwd: %v", err)
    }
    if err := os.Chdir(t.TempDir()); err != nil {
        t.Fatalf("chdir: %v", err)
    }
    t.Cleanup(func() { os.Chdir(cwd) })

    cfg, err := Load("")
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.Log.Level != "error" {
        t.Fatalf("log.level = %q, want env override", cfg.Log.Level)
    }
    if cfg.InstanceID != "env-node" {
        t.Fatalf("instance_id = %q, want env override", cfg.InstanceID)
    }
}

func TestValidateRejectsBadTransport(t *testing.T) {
    cases := []struct {
        name string
        yaml string
        want string
    }{
        {
            name: "unknown kind",
            yaml: "transports:\n  - {id: a, kind: carrier-pigeon, direction: incoming, address: \":1\"}\n",
            want: "unknown kind",
        },
        {
            name: "mem not configurable",
            yaml: "transports:\n  - {id: a, kind: mem, direction: incoming, address: \"x\"}\n",
            want: "in-process only",
        },
        {
            name: "bad direction",
            yaml: "transports:\n  - {id: a, kind: tcp, direction: sideways, address: \":1\"}\n",
            want: "direction",
        },
        {
            name: "missing address",
            yaml: "transports:\n  - {id: a, kind: tcp, direction: incoming}\n",
            want: "missing address",
        },
        {
            name: "proto codec on the wire",
            yaml: "transports:\n  - {id: a, kind: tcp, direction: incoming, address: \":1\", codec: proto}\n",
            want: "codec proto",
        },
        {
            name: "duplicate id",
            yaml: "transports:\n  - {id: a, kind: tcp, direction: incoming, address: \":1\"}\n  - {id: a, kind: udp, direction: incoming, address: \":2\"}\n",
            want: "duplicate",
        },
    }

    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            path := writeConfig(t, tc.yaml)
            _, err := Load(path)
            if err == nil {
                t.Fatalf("Load accepted invalid config")
            }
            if !strings.Contains(err.Error(), tc.want) {
                t.Fatalf("error = %v, want substring %q", err, tc.want)
            }
        })
    }
}

func TestInvalidLogLevel(t *testing.T) {
    path := writeConfig(t, "log:\n  level: verbose\n")
    if _, err := Load(path); err == nil {
        t.Fatalf("Load accepted invalid log level")
    }
}

func TestWatchReportsReload(t *testing.T) {
    path := writeConfig(t, "instance_id: before\n")

    changed := make(chan *Config, 8)
    cfg, err := Watch(path, func(c *Config) { changed <- c })
    if err != nil {
        t.Fatalf("Watch: %v", err)
    }
    if cfg.InstanceID != "before" {
        t.Fatalf("initial instance_id = %q", cfg.InstanceID)
    }

    // invalid content first: must be dropped, never reported
    if err := os.WriteFile(path, []byte("log:\n  level: verbose\n"), 0o644); err != nil {
        t.Fatalf("write invalid config: %v", err)
    }
    time.Sleep(100 * time.Millisecond)
    if err := os.WriteFile(path, []byte("instance_id: after\n"), 0o644); err != nil {
        t.Fatalf("write config: %v", err)
    }

    deadline := time.After(5 * time.Second)
    for {
        select {
        case c := <-changed:
            if c.Log.Level == "verbose" {
                t.Fatalf("invalid reload was reported: %+v", c)
            }
            if c.InstanceID == "after" {
                return
            }
        case <-deadline:
            t.Fatalf("reload never reported")
        }
    }
}
