// Package netstack builds transports from configuration and registers them on
// a bridge.
package netstack

import (
    "errors"
    "fmt"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/bridge"
    "github.com/hone-labs/comms-bridge/pkg/config"
    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
    "github.com/hone-labs/comms-bridge/pkg/transport"
    "github.com/hone-labs/comms-bridge/pkg/transport/quic"
    "github.com/hone-labs/comms-bridge/pkg/transport/tcp"
    "github.com/hone-labs/comms-bridge/pkg/transport/udp"
    "github.com/hone-labs/comms-bridge/pkg/transport/winpipe"
)

// Register builds every transport in cfgs and registers it on b. Individual
// transports that fail to build or connect are reported in the joined error;
// the rest keep running. The returned closer deregisters and shuts down
// everything Register started.
func Register(b *bridge.Bridge, cfgs []config.TransportConfig, codecs *codec.Registry, log *zap.Logger) (func(), error) {
    if log == nil {
        log = zap.NewNop()
    }

    var (
        errs     []error
        closers  []func()
        addClose = func(f func()) { closers = append(closers, f) }
    )

    for _, tc := range cfgs {
        c, err := codecs.ByName(tc.Codec)
        if err != nil {
            errs = append(errs, fmt.Errorf("transport %q: %w", tc.ID, err))
            continue
        }
        // The transports frame *transport.Envelope values; a codec that
        // cannot encode one (proto handles only proto.Message) would fail
        // every Deliver, so refuse it up front.
        if _, err := c.Marshal(&transport.Envelope{}); err != nil {
            errs = append(errs, fmt.Errorf("transport %q: codec %q cannot encode envelopes: %w", tc.ID, c.Name(), err))
            continue
        }

        if tc.Direction == "incoming" {
            in, err := newIncoming(tc, c, log)
            if err != nil {
                errs = append(errs, fmt.Errorf("incoming %q: %w", tc.ID, err))
                continue
            }
            if err := b.AddIncoming(tc.ID, in); err != nil {
                errs = append(errs, fmt.Errorf("incoming %q: connect: %w", tc.ID, err))
                continue
            }
            id := tc.ID
            addClose(func() { _ = b.RemoveIncoming(id) })
            log.Info("incoming transport up",
                zap.String("id", tc.ID), zap.String("kind", tc.Kind), zap.String("addr", tc.Address))
            continue
        }

        out, err := newOutgoing(tc, c, log)
        if err != nil {
            errs = append(errs, fmt.Errorf("outgoing %q: %w", tc.ID, err))
            continue
        }
        b.AddOutgoing(tc.ID, out)
        id := tc.ID
        addClose(func() {
            b.RemoveOutgoing(id)
            if cl, ok := out.(transport.Closer); ok {
                _ = cl.Close()
            }
        })
        log.Info("outgoing transport up",
            zap.String("id", tc.ID), zap.String("kind", tc.Kind), zap.String("addr", tc.Address))
    }

    closeAll := func() {
        for i := len(closers) - 1; i >= 0; i-- {
            closers[i]()
        }
    }
    return closeAll, errors.Join(errs...)
}

func newIncoming(tc config.TransportConfig, c codec.Codec, log *zap.Logger) (transport.Incoming, error) {
    switch transport.KindFromString(tc.Kind) {
    case transport.KindTCP:
        return tcp.NewListener(tc.Address, c, log), nil
    case transport.KindUDP:
        return udp.NewReceiver(tc.Address, c, log), nil
    case transport.KindQUIC:
        return quic.NewListener(tc.Address, c, nil, log), nil
    case transport.KindWinPipe:
        return winpipe.NewListener(tc.Address, c, log)
    default:
        return nil, fmt.Errorf("unsupported incoming kind %q", tc.Kind)
    }
}

func newOutgoing(tc config.TransportConfig, c codec.Codec, log *zap.Logger) (transport.Outgoing, error) {
    switch transport.KindFromString(tc.Kind) {
    case transport.KindTCP:
        return tcp.NewDialer(tc.Address, c, log), nil
    case transport.KindUDP:
        return udp.NewSender(tc.Address, c), nil
    case transport.KindQUIC:
        return quic.NewDialer(tc.Address, c, nil), nil
    case transport.KindWinPipe:
        return winpipe.NewDialer(tc.Address, c)
    default:
        return nil, fmt.Errorf("unsupported outgoing kind %q", tc.Kind)
    }
}
