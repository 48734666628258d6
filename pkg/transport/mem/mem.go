// Package mem provides an in-process transport: a Network of named endpoints
// exchanging envelopes by direct function call. It backs the tests and the
// examples, and stands in for any same-process channel.
package mem

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// Network is an in-process fabric connecting named endpoints.
type Network struct {
    mu  sync.Mutex
    eps map[string]*Endpoint
}

func NewNetwork() *Network { return &Network{eps: make(map[string]*Endpoint)} }

// Endpoint returns the endpoint registered under name, creating it on first
// use. An Endpoint is the incoming side of a link; hand it to AddIncoming.
func (n *Network) Endpoint(name string) *Endpoint {
    n.mu.Lock()
    defer n.mu.Unlock()
    ep, ok := n.eps[name]
    if !ok {
        ep = &Endpoint{name: name}
        n.eps[name] = ep
    }
    return ep
}

// Outgoing returns an outgoing transport that delivers into the endpoint
// named remote. The endpoint does not need to exist yet; delivery to a name
// that was never created fails.
func (n *Network) Outgoing(remote string) transport.Outgoing {
    return &link{net: n, remote: remote}
}

func (n *Network) lookup(name string) *Endpoint {
    n.mu.Lock()
    defer n.mu.Unlock()
    return n.eps[name]
}

// Endpoint is the receiving end of an in-process link. It implements
// transport.Incoming with the documented single-connect lifecycle.
type Endpoint struct {
    name string

    mu        sync.Mutex
    connected bool
    fn        func(env *transport.Envelope)
}

func (e *Endpoint) Connect(fn func(env *transport.Envelope)) error {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.connected {
        return fmt.Errorf("mem: endpoint %q already connected", e.name)
    }
    e.connected = true
    e.fn = fn
    return nil
}

func (e *Endpoint) Disconnect() error {
    e.mu.Lock()
    defer e.mu.Unlock()
    e.connected = false
    e.fn = nil
    return nil
}

type link struct {
    net    *Network
    remote string
}

// Deliver hands the envelope to the remote endpoint's callback synchronously.
// The envelope is cloned first so the two instances never alias one value. A
// disconnected endpoint silently drops, like any lossy link; a name that was
// never created is a configuration error.
func (l *link) Deliver(ctx context.Context, env *transport.Envelope, _ transport.DeliverOptions) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    ep := l.net.lookup(l.remote)
    if ep == nil {
        return fmt.Errorf("%w %q", ErrNoEndpoint, l.remote)
    }
    ep.mu.Lock()
    fn := ep.fn
    ep.mu.Unlock()
    if fn == nil {
        return nil
    }
    fn(env.Clone())
    return nil
}

var _ transport.Incoming = (*Endpoint)(nil)
var _ transport.Outgoing = (*link)(nil)

// ErrNoEndpoint marks delivery to an endpoint name that was never created.
var ErrNoEndpoint = errors.New("mem: no endpoint")
