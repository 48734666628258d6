// Package transport declares the capability contracts between the hub core and
// the pluggable channels it routes over. The hub only ever sees these two
// interfaces; wiring, framing and serialization live in the implementations.
package transport

import (
    "context"
    "time"
)

// Kind identifies a transport implementation for configuration and logging.
type Kind int

const (
    KindUnknown Kind = iota
    KindMem
    KindTCP
    KindUDP
    KindQUIC
    KindWinPipe
)

func (k Kind) String() string {
    switch k {
    case KindMem:
        return "mem"
    case KindTCP:
        return "tcp"
    case KindUDP:
        return "udp"
    case KindQUIC:
        return "quic"
    case KindWinPipe:
        return "winpipe"
    default:
        return "unknown"
    }
}

// KindFromString parses a config alias into a Kind.
func KindFromString(s string) Kind {
    switch s {
    case "mem":
        return KindMem
    case "tcp":
        return KindTCP
    case "udp":
        return KindUDP
    case "quic":
        return KindQUIC
    case "winpipe":
        return KindWinPipe
    default:
        return KindUnknown
    }
}

// DeliverOptions carries the send options of the originating call down to the
// transport. Transports are free to ignore them; Timeout is commonly used as a
// write deadline.
type DeliverOptions struct {
    // AwaitReply indicates the sender is waiting for a correlated response.
    AwaitReply bool
    // Timeout is the sender's reply deadline.
    Timeout time.Duration
}

// Outgoing is a channel the hub can deliver envelopes on. Deliver is a
// best-effort, at-most-once attempt; the transport reports failures but the
// hub never retries. Implementations must be safe for concurrent Deliver calls.
type Outgoing interface {
    Deliver(ctx context.Context, env *Envelope, opts DeliverOptions) error
}

// Incoming is a channel that produces envelopes for the hub.
//
// Connect installs the receive callback and starts the transport; it is called
// exactly once per registration, and the callback stays live until Disconnect.
// After Disconnect returns no further callback invocations may occur, and the
// transport will not be reconnected.
type Incoming interface {
    Connect(fn func(env *Envelope)) error
    Disconnect() error
}

// Closer is implemented by outgoing transports that hold connections open.
type Closer interface {
    Close() error
}
