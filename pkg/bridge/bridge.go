// Package bridge implements the message-routing core: a Bridge exchanges named
// messages with peer instances over any number of registered incoming and
// outgoing transports, optionally awaiting a correlated reply. It is a
// best-effort, in-memory correlation layer; delivery, ordering and persistence
// guarantees are whatever the underlying transports provide.
package bridge

import (
    "context"
    "sync"
    "sync/atomic"
    "time"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// Handler produces the response for a named message. It receives the payload
// of the incoming envelope and runs on its own goroutine, so it may block. A
// nil result means "no reply": the sender, if awaiting, will time out. A
// returned error is reported locally and likewise produces no reply.
type Handler func(ctx context.Context, payload any) (any, error)

// Bridge is one endpoint of the message fabric, identified by an id that is
// unique within the set of peers it exchanges messages with.
//
// All methods are safe for concurrent use.
type Bridge struct {
    id  string
    log *zap.Logger

    // seq assigns per-instance message ids, starting at 1, never reused.
    seq atomic.Uint64

    // ctx is the lifetime of this instance; handlers observe its cancellation.
    ctx    context.Context
    cancel context.CancelFunc

    mu           sync.Mutex
    closed       bool
    replyTimeout time.Duration

    pending  map[uint64]*pending
    handlers map[string]Handler
    outgoing map[string]transport.Outgoing
    incoming map[string]transport.Incoming
}

// New creates an idle bridge for the given instance id. A nil logger disables
// event reporting; logging is never required for correctness.
func New(id string, log *zap.Logger) *Bridge {
    if log == nil {
        log = zap.NewNop()
    }
    ctx, cancel := context.WithCancel(context.Background())
    return &Bridge{
        id:       id,
        log:      log.With(zap.String("instance", id)),
        ctx:      ctx,
        cancel:   cancel,
        pending:  make(map[uint64]*pending),
        handlers: make(map[string]Handler),
        outgoing: make(map[string]transport.Outgoing),
        incoming: make(map[string]transport.Incoming),
    }
}

// ID returns the instance id.
func (b *Bridge) ID() string { return b.id }

// nextID returns the next message id. Ids are strictly increasing from 1.
func (b *Bridge) nextID() uint64 { return b.seq.Add(1) }

// SetReplyTimeout changes the deadline applied to awaited sends that carry no
// explicit Options.Timeout. Non-positive d restores DefaultReplyTimeout.
func (b *Bridge) SetReplyTimeout(d time.Duration) {
    b.mu.Lock()
    b.replyTimeout = d
    b.mu.Unlock()
}

func (b *Bridge) defaultTimeout() time.Duration {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.replyTimeout > 0 {
        return b.replyTimeout
    }
    return DefaultReplyTimeout
}

// Respond registers fn as the handler for messages named name, replacing any
// previous handler for the same name.
func (b *Bridge) Respond(name string, fn Handler) {
    b.mu.Lock()
    b.handlers[name] = fn
    b.mu.Unlock()
}

// AddOutgoing registers an outgoing transport under id. Registering an id
// twice replaces the earlier transport.
func (b *Bridge) AddOutgoing(id string, out transport.Outgoing) {
    b.mu.Lock()
    b.outgoing[id] = out
    b.mu.Unlock()
}

// RemoveOutgoing unregisters an outgoing transport. Removing an unknown id is
// a no-op. An in-flight broadcast keeps using the snapshot it started with.
func (b *Bridge) RemoveOutgoing(id string) {
    b.mu.Lock()
    delete(b.outgoing, id)
    b.mu.Unlock()
}

// AddIncoming registers an incoming transport under id and immediately
// connects it, wiring every received envelope into the router tagged with id.
// The wiring happens exactly once per registration; re-registering an id first
// disconnects the transport previously held under it.
func (b *Bridge) AddIncoming(id string, in transport.Incoming) error {
    b.mu.Lock()
    if b.closed {
        b.mu.Unlock()
        return ErrClosed
    }
    old := b.incoming[id]
    b.incoming[id] = in
    b.mu.Unlock()

    if old != nil {
        if err := old.Disconnect(); err != nil {
            b.log.Warn("disconnect of replaced incoming transport failed",
                zap.String("transport", id), zap.Error(err))
        }
    }
    if err := in.Connect(func(env *protocol.Envelope) { b.routeIncoming(id, env) }); err != nil {
        b.mu.Lock()
        if b.incoming[id] == in {
            delete(b.incoming, id)
        }
        b.mu.Unlock()
        return err
    }
    // Connect ran outside the lock; a concurrent re-registration (or Close)
    // may have taken the slot since. The entry holder keeps the callback, a
    // loser must not stay connected.
    b.mu.Lock()
    current := b.incoming[id] == in
    b.mu.Unlock()
    if !current {
        return in.Disconnect()
    }
    return nil
}

// RemoveIncoming disconnects and unregisters an incoming transport. The
// disconnect side effect happens once; removing an unknown id is a no-op.
func (b *Bridge) RemoveIncoming(id string) error {
    b.mu.Lock()
    in, ok := b.incoming[id]
    if ok {
        delete(b.incoming, id)
    }
    b.mu.Unlock()
    if !ok {
        return nil
    }
    return in.Disconnect()
}

// Close disconnects all incoming transports, fails every outstanding awaited
// send with ErrClosed and cancels the handler context. Outgoing transports are
// owned by the caller and are not closed here.
func (b *Bridge) Close() error {
    b.mu.Lock()
    if b.closed {
        b.mu.Unlock()
        return nil
    }
    b.closed = true
    ins := make([]transport.Incoming, 0, len(b.incoming))
    for _, in := range b.incoming {
        ins = append(ins, in)
    }
    b.incoming = make(map[string]transport.Incoming)
    pend := b.pending
    b.pending = make(map[uint64]*pending)
    b.mu.Unlock()

    b.cancel()
    var firstErr error
    for _, in := range ins {
        if err := in.Disconnect(); err != nil && firstErr == nil {
            firstErr = err
        }
    }
    for _, p := range pend {
        p.timer.Stop()
        p.ch <- pendingResult{err: ErrClosed}
    }
    return firstErr
}
