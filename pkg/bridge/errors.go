package bridge

import "errors"

var (
    // ErrNoTransport is returned by Send when zero outgoing transports are
    // registered. The check happens before any transport is touched, so the
    // operation never partially sends.
    ErrNoTransport = errors.New("bridge: no outgoing transport registered")

    // ErrTransportNotFound is returned by Send when the envelope names a
    // transport id that is not registered. This is a caller error, not a
    // delivery timeout.
    ErrTransportNotFound = errors.New("bridge: outgoing transport not found")

    // ErrReplyTimeout is returned by an awaited Send whose reply did not
    // arrive within the deadline. A reply that straggles in later is
    // silently discarded.
    ErrReplyTimeout = errors.New("bridge: reply timeout")

    // ErrClosed is returned for operations on a closed bridge and delivered
    // to awaited sends still outstanding when Close is called.
    ErrClosed = errors.New("bridge: closed")
)
