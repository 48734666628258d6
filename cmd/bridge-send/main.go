// bridge-send is a small command line client: it dials a bridge node, sends a
// named message, and optionally waits for the reply. Waiting for a reply
// requires -listen, because the remote node delivers the reply through its own
// outgoing channel paired with the one our request arrived on.
package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "time"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/bridge"
    "github.com/hone-labs/comms-bridge/pkg/config"
    "github.com/hone-labs/comms-bridge/pkg/netstack"
    "github.com/hone-labs/comms-bridge/pkg/protocol"
    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
)

func main() {
    kind := flag.String("kind", "tcp", "transport kind: tcp|udp|quic|winpipe")
    addr := flag.String("addr", "127.0.0.1:7788", "address of the remote node")
    listen := flag.String("listen", "", "local address to accept the reply on (enables -await)")
    link := flag.String("link", "uplink", "transport id; must match the remote node's configuration")
    instance := flag.String("instance", "bridge-send", "local instance id")
    target := flag.String("target", "", "target instance id (required)")
    name := flag.String("name", "ping", "message name")
    payload := flag.String("payload", "", "message payload as JSON (optional)")
    codecName := flag.String("codec", "json", "wire codec: json|cbor|proto")
    await := flag.Bool("await", false, "wait for a correlated reply")
    timeout := flag.Duration("timeout", 5*time.Second, "reply timeout")
    flag.Parse()

    logger, _ := zap.NewDevelopment()
    zap.ReplaceGlobals(logger)
    defer logger.Sync()

    var body any
    if *payload != "" {
        if err := json.Unmarshal([]byte(*payload), &body); err != nil {
            fatalf("parse payload: %v", err)
        }
    }
    if *target == "" {
        fatalf("-target is required")
    }
    if *await && *listen == "" {
        fatalf("-await requires -listen so the reply has a way back")
    }

    cfgs := []config.TransportConfig{
        {ID: *link, Kind: *kind, Direction: "outgoing", Address: *addr, Codec: *codecName},
    }
    if *listen != "" {
        cfgs = append(cfgs, config.TransportConfig{
            ID: *link, Kind: *kind, Direction: "incoming", Address: *listen, Codec: *codecName,
        })
    }

    b := bridge.New(*instance, logger)
    defer b.Close()

    closeAll, err := netstack.Register(b, cfgs, codec.NewRegistry(), logger)
    if err != nil {
        fatalf("start transports: %v", err)
    }
    defer closeAll()

    ctx, cancel := context.WithTimeout(context.Background(), *timeout)
    defer cancel()

    env := protocol.NewMessage(*target, *name, body)
    res, err := b.Send(ctx, env, bridge.Options{AwaitReply: *await, Timeout: *timeout})
    if err != nil {
        fatalf("send: %v", err)
    }
    if !*await {
        fmt.Println("message sent")
        return
    }

    out, err := json.MarshalIndent(res, "", "  ")
    if err != nil {
        fatalf("encode reply: %v", err)
    }
    fmt.Println(string(out))
}

func fatalf(format string, a ...any) {
    _, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
    os.Exit(1)
}
