package codec

import (
    "testing"

    "google.golang.org/protobuf/types/known/structpb"

    "github.com/hone-labs/comms-bridge/pkg/protocol"
)

func TestJSONEnvelopeRoundtrip(t *testing.T) {
    c := JSON()
    in := protocol.Envelope{ID: 3, SenderID: "a", TargetID: "b", Name: "greet", Payload: map[string]any{"who": "world"}}
    b, err := c.Marshal(&in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out protocol.Envelope
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.ID != 3 || out.Name != "greet" || out.TargetID != "b" {
        t.Fatalf("roundtrip mismatch: %+v", out)
    }
    p, ok := out.Payload.(map[string]any)
    if !ok || p["who"].(string) != "world" {
        t.Fatalf("payload mismatch: %#v", out.Payload)
    }
}

func TestCBOREnvelopeRoundtrip(t *testing.T) {
    c := CBOR()
    in := protocol.Envelope{ID: 9, ReplyID: 4, SenderID: "b", TargetID: "a", Payload: "pong"}
    b, err := c.Marshal(&in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out protocol.Envelope
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.ID != 9 || out.ReplyID != 4 || out.Payload.(string) != "pong" {
        t.Fatalf("roundtrip mismatch: %+v", out)
    }
    if !out.IsReply() {
        t.Fatalf("expected reply after roundtrip")
    }
}

func TestProtoCodec(t *testing.T) {
    c := Proto()
    s, err := structpb.NewStruct(map[string]any{"k": "v"})
    if err != nil { t.Fatalf("struct: %v", err) }
    b, err := c.Marshal(s)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out structpb.Struct
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.Fields["k"].GetStringValue() != "v" { t.Fatalf("roundtrip mismatch") }
    if _, err := c.Marshal(42); err == nil {
        t.Fatalf("expected error for non-proto value")
    }
}

func TestRegistryLookup(t *testing.T) {
    r := NewRegistry()
    c, err := r.ByName("CBOR")
    if err != nil || c.Name() != "cbor" { t.Fatalf("ByName(CBOR): %v %v", c, err) }
    c, err = r.ByName("")
    if err != nil || c.Name() != "json" { t.Fatalf("empty name should default to json: %v %v", c, err) }
    if _, err := r.ByName("msgpack"); err == nil {
        t.Fatalf("expected error for unknown codec")
    }
    if got := r.ByContentType("application/json"); got == nil || got.Name() != "json" {
        t.Fatalf("ByContentType mismatch: %v", got)
    }
}
