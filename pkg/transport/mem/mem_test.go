package mem

import (
    "context"
    "errors"
    "testing"

    "github.com/hone-labs/comms-bridge/pkg/transport"
)

func TestDeliverReachesConnectedEndpoint(t *testing.T) {
    n := NewNetwork()
    ep := n.Endpoint("b")
    var got *transport.Envelope
    if err := ep.Connect(func(env *transport.Envelope) { got = env }); err != nil {
        t.Fatalf("connect: %v", err)
    }
    orig := &transport.Envelope{ID: 1, SenderID: "a", TargetID: "b", Name: "x"}
    if err := n.Outgoing("b").Deliver(context.Background(), orig, transport.DeliverOptions{}); err != nil {
        t.Fatalf("deliver: %v", err)
    }
    if got == nil || got.ID != 1 || got.Name != "x" {
        t.Fatalf("endpoint got %+v", got)
    }
    if got == orig {
        t.Fatalf("expected a cloned envelope, got the same pointer")
    }
}

func TestDeliverUnknownEndpoint(t *testing.T) {
    n := NewNetwork()
    err := n.Outgoing("nowhere").Deliver(context.Background(), &transport.Envelope{ID: 1}, transport.DeliverOptions{})
    if !errors.Is(err, ErrNoEndpoint) {
        t.Fatalf("err=%v, want ErrNoEndpoint", err)
    }
}

func TestDisconnectedEndpointDropsSilently(t *testing.T) {
    n := NewNetwork()
    ep := n.Endpoint("b")
    calls := 0
    if err := ep.Connect(func(*transport.Envelope) { calls++ }); err != nil {
        t.Fatalf("connect: %v", err)
    }
    if err := ep.Disconnect(); err != nil {
        t.Fatalf("disconnect: %v", err)
    }
    if err := n.Outgoing("b").Deliver(context.Background(), &transport.Envelope{ID: 1}, transport.DeliverOptions{}); err != nil {
        t.Fatalf("deliver after disconnect: %v", err)
    }
    if calls != 0 {
        t.Fatalf("callback fired after disconnect")
    }
}

func TestConnectLifecycle(t *testing.T) {
    n := NewNetwork()
    ep := n.Endpoint("b")
    if err := ep.Connect(func(*transport.Envelope) {}); err != nil {
        t.Fatalf("connect: %v", err)
    }
    if err := ep.Connect(func(*transport.Envelope) {}); err == nil {
        t.Fatalf("second connect should fail while connected")
    }
    if err := ep.Disconnect(); err != nil {
        t.Fatalf("disconnect: %v", err)
    }
    if err := ep.Connect(func(*transport.Envelope) {}); err != nil {
        t.Fatalf("reconnect after disconnect: %v", err)
    }
}

func TestEndpointIsStablePerName(t *testing.T) {
    n := NewNetwork()
    if n.Endpoint("b") != n.Endpoint("b") {
        t.Fatalf("expected the same endpoint for the same name")
    }
}
