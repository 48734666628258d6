package bridge

import (
    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// routeIncoming is invoked once per envelope produced by any registered
// incoming transport, tagged with the transport it arrived on. It never
// panics and never blocks on handler work, so one bad message cannot stall
// processing of the next. The decision sequence is evaluated in order, first
// match wins.
func (b *Bridge) routeIncoming(transportID string, env *protocol.Envelope) {
    if env == nil {
        return
    }
    log := b.log.With(zap.String("transport", transportID), zap.Stringer("envelope", env))
    switch {
    case env.ForwarderID == b.id:
        // We relayed this envelope once already; seeing it again means the
        // topology has a cycle. Drop to terminate the loop.
        log.Debug("dropping already-forwarded envelope")
    case env.SenderID == b.id:
        // Our own broadcast echoed back over a shared channel.
        log.Debug("dropping own echo")
    case env.TargetID != b.id:
        b.forward(env, log)
    case env.IsReply():
        // Reply resolution wins over handler dispatch even if Name is set.
        b.resolvePending(env.ReplyID, env.Payload)
    case env.Name == "":
        // Addressed here, not a reply, nothing to select a handler with.
        log.Warn("dropping unroutable envelope")
    default:
        b.handle(transportID, env, log)
    }
}

// forward relays an envelope not addressed here onto every outgoing transport,
// regardless of which transport it arrived on. The relayed copy carries our id
// as ForwarderID so the next sighting of it on this instance is dropped.
func (b *Bridge) forward(env *protocol.Envelope, log *zap.Logger) {
    outs, err := b.outgoingSnapshot("")
    if err != nil {
        // Nothing to relay on. Reportable, but never fatal to the router.
        log.Warn("cannot forward envelope", zap.Error(err))
        return
    }
    hop := env.WithForwarder(b.id)
    if err := b.deliver(b.ctx, hop, outs, transport.DeliverOptions{}); err != nil {
        log.Warn("forwarding failed", zap.Error(err))
    }
}

// handle dispatches env to the handler registered for its name, off the
// routing goroutine. A missing handler is reported and the envelope dropped;
// the sender, if awaiting, learns about it only through its timeout.
func (b *Bridge) handle(transportID string, env *protocol.Envelope, log *zap.Logger) {
    b.mu.Lock()
    fn, ok := b.handlers[env.Name]
    b.mu.Unlock()
    if !ok {
        log.Warn("no handler registered", zap.String("name", env.Name))
        return
    }
    go b.invoke(transportID, env, fn, log)
}

// invoke runs one handler and, when it yields a non-nil result, sends the
// reply back as a unicast pinned to the transport the request arrived on.
// Panics and handler errors are contained here; no reply is sent for them.
func (b *Bridge) invoke(transportID string, env *protocol.Envelope, fn Handler, log *zap.Logger) {
    defer func() {
        if r := recover(); r != nil {
            log.Error("handler panicked", zap.String("name", env.Name), zap.Any("panic", r))
        }
    }()
    result, err := fn(b.ctx, env.Payload)
    if err != nil {
        log.Warn("handler failed", zap.String("name", env.Name), zap.Error(err))
        return
    }
    if result == nil {
        // Handler chose not to respond; the request side times out if it was
        // awaiting a reply.
        return
    }
    rep := protocol.NewReply(env, transportID, result)
    if _, err := b.Send(b.ctx, rep, Options{}); err != nil {
        log.Warn("reply delivery failed", zap.String("name", env.Name), zap.Error(err))
    }
}
