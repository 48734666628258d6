package netstack

import (
    "context"
    "errors"
    "runtime"
    "strings"
    "testing"

    "github.com/hone-labs/comms-bridge/pkg/bridge"
    "github.com/hone-labs/comms-bridge/pkg/config"
    "github.com/hone-labs/comms-bridge/pkg/protocol"
    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
    "github.com/hone-labs/comms-bridge/pkg/transport/winpipe"
)

func TestRegisterAndClose(t *testing.T) {
    b := bridge.New("node-a", nil)
    t.Cleanup(func() { b.Close() })

    cfgs := []config.TransportConfig{
        {ID: "uplink", Kind: "tcp", Direction: "incoming", Address: "127.0.0.1:0", Codec: "json"},
        {ID: "uplink", Kind: "tcp", Direction: "outgoing", Address: "127.0.0.1:65000", Codec: "cbor"},
        {ID: "telemetry", Kind: "udp", Direction: "outgoing", Address: "127.0.0.1:65001", Codec: "json"},
    }

    closeAll, err := Register(b, cfgs, codec.NewRegistry(), nil)
    if err != nil {
        t.Fatalf("Register: %v", err)
    }
    closeAll()
}

func TestRegisterUnknownCodec(t *testing.T) {
    b := bridge.New("node-a", nil)
    t.Cleanup(func() { b.Close() })

    cfgs := []config.TransportConfig{
        {ID: "uplink", Kind: "tcp", Direction: "outgoing", Address: "127.0.0.1:65000", Codec: "bson"},
    }
    closeAll, err := Register(b, cfgs, codec.NewRegistry(), nil)
    if err == nil {
        t.Fatalf("Register accepted unknown codec")
    }
    closeAll()
}

func TestRegisterContinuesPastFailure(t *testing.T) {
    b := bridge.New("node-a", nil)
    t.Cleanup(func() { b.Close() })

    cfgs := []config.TransportConfig{
        {ID: "bad", Kind: "tcp", Direction: "outgoing", Address: "127.0.0.1:65000", Codec: "bson"},
        {ID: "good", Kind: "udp", Direction: "outgoing", Address: "127.0.0.1:65001", Codec: "json"},
    }
    closeAll, err := Register(b, cfgs, codec.NewRegistry(), nil)
    if err == nil {
        t.Fatalf("expected error for bad transport")
    }
    defer closeAll()

    // the good transport must still be registered
    env := protocol.NewMessage("node-b", "ping", nil)
    if _, sendErr := b.Send(context.Background(), env, bridge.Options{}); sendErr != nil {
        t.Fatalf("Send through surviving transport: %v", sendErr)
    }
}

func TestRegisterWinPipe(t *testing.T) {
    if runtime.GOOS == "windows" {
        t.Skip("stub behavior only applies off windows")
    }
    b := bridge.New("node-a", nil)
    t.Cleanup(func() { b.Close() })

    cfgs := []config.TransportConfig{
        {ID: "pipe", Kind: "winpipe", Direction: "outgoing", Address: `\\.\pipe\bridge`, Codec: "json"},
    }
    closeAll, err := Register(b, cfgs, codec.NewRegistry(), nil)
    if !errors.Is(err, winpipe.ErrUnsupported) {
        t.Fatalf("err = %v, want ErrUnsupported", err)
    }
    closeAll()
}

func TestRegisterRejectsEnvelopeIncapableCodec(t *testing.T) {
    b := bridge.New("node-a", nil)
    t.Cleanup(func() { b.Close() })

    cfgs := []config.TransportConfig{
        {ID: "uplink", Kind: "tcp", Direction: "outgoing", Address: "127.0.0.1:65000", Codec: "proto"},
    }
    closeAll, err := Register(b, cfgs, codec.NewRegistry(), nil)
    if err == nil || !strings.Contains(err.Error(), "cannot encode envelopes") {
        t.Fatalf("Register err = %v, want envelope-encoding rejection", err)
    }
    defer closeAll()

    env := protocol.NewMessage("node-b", "ping", nil)
    if _, sendErr := b.Send(context.Background(), env, bridge.Options{}); !errors.Is(sendErr, bridge.ErrNoTransport) {
        t.Fatalf("transport was registered despite codec rejection: %v", sendErr)
    }
}
