//go:build !windows

package winpipe

import (
    "context"
    "errors"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// ErrUnsupported reports that named pipes exist only on Windows.
var ErrUnsupported = errors.New("winpipe: named pipes are only available on windows")

type Dialer struct{}

func NewDialer(string, codec.Codec) (*Dialer, error) { return nil, ErrUnsupported }

func (*Dialer) Deliver(context.Context, *transport.Envelope, transport.DeliverOptions) error {
    return ErrUnsupported
}

func (*Dialer) Close() error { return nil }

type Listener struct{}

func NewListener(string, codec.Codec, *zap.Logger) (*Listener, error) { return nil, ErrUnsupported }

func (*Listener) Connect(func(env *transport.Envelope)) error { return ErrUnsupported }

func (*Listener) Disconnect() error { return nil }

var _ transport.Outgoing = (*Dialer)(nil)
var _ transport.Incoming = (*Listener)(nil)
