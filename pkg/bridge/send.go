package bridge

import (
    "context"
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// DefaultReplyTimeout bounds an awaited send when Options.Timeout is unset.
const DefaultReplyTimeout = 5 * time.Second

// Options controls a single Send call.
type Options struct {
    // AwaitReply blocks the call until a correlated reply arrives or the
    // timeout elapses. When false, Send returns as soon as delivery is done.
    AwaitReply bool
    // Timeout is the reply deadline for awaited sends; zero falls back to
    // the bridge default (SetReplyTimeout, else DefaultReplyTimeout).
    Timeout time.Duration
}

// Send dispatches env to its target. The envelope's TargetID and, for
// non-replies, Name must be set by the caller; SenderID and ID are stamped
// here on a copy, the caller's envelope is never mutated.
//
// With a TransportID the envelope is delivered only on that named outgoing
// transport; without one it is broadcast to every registered outgoing
// transport. Broadcast is best-effort: every transport is attempted exactly
// once and the per-transport failures, if any, come back joined in the
// returned error.
//
// When opts.AwaitReply is set, the returned value is the reply payload;
// otherwise it is nil. Delivery is never retried.
func (b *Bridge) Send(ctx context.Context, env *protocol.Envelope, opts Options) (any, error) {
    if env == nil {
        return nil, errors.New("bridge: nil envelope")
    }
    if err := env.Validate(); err != nil {
        return nil, err
    }
    outs, err := b.outgoingSnapshot(env.TransportID)
    if err != nil {
        return nil, err
    }

    eff := env.Clone()
    eff.SenderID = b.id
    eff.ID = b.nextID()

    timeout := opts.Timeout
    if timeout <= 0 {
        timeout = b.defaultTimeout()
    }
    dopts := transport.DeliverOptions{AwaitReply: opts.AwaitReply, Timeout: timeout}

    if !opts.AwaitReply {
        return nil, b.deliver(ctx, eff, outs, dopts)
    }

    // Register before delivering so a reply racing back over a fast transport
    // always finds its entry.
    ch := b.registerPending(eff.ID, timeout)
    if err := b.deliver(ctx, eff, outs, dopts); err != nil {
        b.abandonPending(eff.ID)
        return nil, err
    }
    select {
    case r := <-ch:
        return r.payload, r.err
    case <-ctx.Done():
        b.abandonPending(eff.ID)
        return nil, ctx.Err()
    }
}

// namedOutgoing pairs a registered outgoing transport with its id for error
// reporting during fan-out.
type namedOutgoing struct {
    id  string
    out transport.Outgoing
}

// outgoingSnapshot resolves the delivery set under the lock: the one named
// transport, or a snapshot of all of them for broadcast. Transports removed
// after the snapshot still see the in-flight delivery.
func (b *Bridge) outgoingSnapshot(transportID string) ([]namedOutgoing, error) {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed {
        return nil, ErrClosed
    }
    if len(b.outgoing) == 0 {
        return nil, ErrNoTransport
    }
    if transportID != "" {
        out, ok := b.outgoing[transportID]
        if !ok {
            return nil, fmt.Errorf("%w: %q", ErrTransportNotFound, transportID)
        }
        return []namedOutgoing{{id: transportID, out: out}}, nil
    }
    outs := make([]namedOutgoing, 0, len(b.outgoing))
    for id, out := range b.outgoing {
        outs = append(outs, namedOutgoing{id: id, out: out})
    }
    return outs, nil
}

// deliver attempts env on every transport in outs exactly once and joins the
// failures. A failing transport never stops the remaining fan-out.
func (b *Bridge) deliver(ctx context.Context, env *protocol.Envelope, outs []namedOutgoing, opts transport.DeliverOptions) error {
    var errs []error
    for _, o := range outs {
        if err := o.out.Deliver(ctx, env, opts); err != nil {
            b.log.Debug("delivery failed",
                zap.String("transport", o.id),
                zap.Stringer("envelope", env),
                zap.Error(err))
            errs = append(errs, fmt.Errorf("transport %q: %w", o.id, err))
        }
    }
    return errors.Join(errs...)
}
