package bridge

import (
    "time"

    "go.uber.org/zap"
)

// pendingResult is what an awaited send ultimately observes: the reply payload
// or a terminal error, exactly one of the two, exactly once.
type pendingResult struct {
    payload any
    err     error
}

// pending tracks one outstanding request awaiting a reply. The channel is
// buffered so neither the resolving router nor the expiring timer ever blocks
// on a sender that already gave up.
type pending struct {
    ch    chan pendingResult
    timer *time.Timer
}

// registerPending stores a pending entry under id and arms its expiry timer.
// The timer callback takes the bridge lock, so even an immediate firing
// observes the finished insert.
func (b *Bridge) registerPending(id uint64, timeout time.Duration) <-chan pendingResult {
    b.mu.Lock()
    p := &pending{ch: make(chan pendingResult, 1)}
    p.timer = time.AfterFunc(timeout, func() { b.expirePending(id) })
    b.pending[id] = p
    b.mu.Unlock()
    return p.ch
}

// expirePending fails the entry for id with ErrReplyTimeout. If the entry is
// already gone the reply won the race and the timer firing is a no-op; the
// existence check under the lock is what makes the race safe, not timer
// cancellation alone.
func (b *Bridge) expirePending(id uint64) {
    b.mu.Lock()
    p, ok := b.pending[id]
    if ok {
        delete(b.pending, id)
    }
    b.mu.Unlock()
    if !ok {
        return
    }
    b.log.Debug("request timed out", zap.Uint64("id", id))
    p.ch <- pendingResult{err: ErrReplyTimeout}
}

// resolvePending delivers payload to the entry awaiting replyID. A reply with
// no matching entry -- already timed out, never awaited, or a duplicate -- is
// dropped without error.
func (b *Bridge) resolvePending(replyID uint64, payload any) {
    b.mu.Lock()
    p, ok := b.pending[replyID]
    if ok {
        delete(b.pending, replyID)
        p.timer.Stop()
    }
    b.mu.Unlock()
    if !ok {
        b.log.Debug("discarding reply with no pending request", zap.Uint64("replyId", replyID))
        return
    }
    p.ch <- pendingResult{payload: payload}
}

// abandonPending drops the entry for id without delivering anything. Used when
// delivery fails after registration or the caller's context is cancelled.
func (b *Bridge) abandonPending(id uint64) {
    b.mu.Lock()
    if p, ok := b.pending[id]; ok {
        delete(b.pending, id)
        p.timer.Stop()
    }
    b.mu.Unlock()
}
