// Package udp carries one codec-encoded envelope per datagram. It drops and
// reorders like UDP does; the core is built to tolerate that, so no reliability
// layer is added here.
package udp

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// maxDatagram bounds encoded envelopes to a size that survives most paths.
const maxDatagram = 60 * 1024

// Sender implements transport.Outgoing: one envelope per datagram to addr.
type Sender struct {
    addr  string
    codec codec.Codec

    mu   sync.Mutex
    conn net.Conn
}

func NewSender(addr string, c codec.Codec) *Sender {
    return &Sender{addr: addr, codec: c}
}

func (s *Sender) Deliver(_ context.Context, env *transport.Envelope, opts transport.DeliverOptions) error {
    b, err := s.codec.Marshal(env)
    if err != nil {
        return fmt.Errorf("udp: encode envelope: %w", err)
    }
    if len(b) > maxDatagram {
        return fmt.Errorf("udp: envelope too large for a datagram: %d bytes", len(b))
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.conn == nil {
        conn, err := net.Dial("udp", s.addr)
        if err != nil {
            return fmt.Errorf("udp: dial %s: %w", s.addr, err)
        }
        s.conn = conn
    }
    if opts.Timeout > 0 {
        _ = s.conn.SetWriteDeadline(time.Now().Add(opts.Timeout))
    }
    if _, err := s.conn.Write(b); err != nil {
        _ = s.conn.Close()
        s.conn = nil
        return fmt.Errorf("udp: send to %s: %w", s.addr, err)
    }
    return nil
}

func (s *Sender) Close() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.conn == nil {
        return nil
    }
    err := s.conn.Close()
    s.conn = nil
    return err
}

// Receiver implements transport.Incoming: it reads datagrams on addr and hands
// each decoded envelope to the connected callback.
type Receiver struct {
    addr  string
    codec codec.Codec
    log   *zap.Logger

    mu   sync.Mutex
    pc   net.PacketConn
    done chan struct{}
    wg   sync.WaitGroup
}

func NewReceiver(addr string, c codec.Codec, log *zap.Logger) *Receiver {
    if log == nil {
        log = zap.NewNop()
    }
    return &Receiver{addr: addr, codec: c, log: log}
}

func (r *Receiver) Connect(fn func(env *transport.Envelope)) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.pc != nil {
        return errors.New("udp: receiver already connected")
    }
    pc, err := net.ListenPacket("udp", r.addr)
    if err != nil {
        return fmt.Errorf("udp: listen %s: %w", r.addr, err)
    }
    r.pc = pc
    r.done = make(chan struct{})
    r.wg.Add(1)
    go r.readLoop(pc, fn)
    return nil
}

// Addr returns the bound address, useful when addr was ":0".
func (r *Receiver) Addr() net.Addr {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.pc == nil {
        return nil
    }
    return r.pc.LocalAddr()
}

func (r *Receiver) Disconnect() error {
    r.mu.Lock()
    if r.pc == nil {
        r.mu.Unlock()
        return nil
    }
    pc := r.pc
    r.pc = nil
    close(r.done)
    r.mu.Unlock()

    err := pc.Close()
    r.wg.Wait()
    return err
}

func (r *Receiver) readLoop(pc net.PacketConn, fn func(env *transport.Envelope)) {
    defer r.wg.Done()
    buf := make([]byte, maxDatagram+1)
    for {
        n, _, err := pc.ReadFrom(buf)
        if err != nil {
            select {
            case <-r.done:
            default:
                r.log.Warn("udp read failed", zap.Error(err))
            }
            return
        }
        var env transport.Envelope
        if err := r.codec.Unmarshal(buf[:n], &env); err != nil {
            r.log.Warn("udp datagram decode failed", zap.Error(err))
            continue
        }
        fn(&env)
    }
}

var _ transport.Outgoing = (*Sender)(nil)
var _ transport.Incoming = (*Receiver)(nil)
