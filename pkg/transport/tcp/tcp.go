// Package tcp carries envelopes over TCP as length-prefixed frames (u32 LE)
// encoded with a pluggable codec. The Dialer is the outgoing side of a link,
// the Listener the incoming side.
package tcp

import (
    "bufio"
    "context"
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "net"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// maxFrame guards against absurd frame sizes on a corrupted stream.
const maxFrame = 1 << 24

// Dialer implements transport.Outgoing over a single TCP connection to a peer.
// The connection is established lazily on first Deliver and re-dialed after a
// write failure; one failed Deliver is reported, not retried.
type Dialer struct {
    addr  string
    codec codec.Codec
    log   *zap.Logger

    mu   sync.Mutex
    conn net.Conn
    bw   *bufio.Writer
}

func NewDialer(addr string, c codec.Codec, log *zap.Logger) *Dialer {
    if log == nil {
        log = zap.NewNop()
    }
    return &Dialer{addr: addr, codec: c, log: log}
}

func (d *Dialer) Deliver(ctx context.Context, env *transport.Envelope, opts transport.DeliverOptions) error {
    b, err := d.codec.Marshal(env)
    if err != nil {
        return fmt.Errorf("tcp: encode envelope: %w", err)
    }
    // Reject before touching the connection: the receiver drops the whole
    // stream on a frame above maxFrame.
    if len(b) > maxFrame {
        return fmt.Errorf("tcp: envelope exceeds frame limit: %d bytes", len(b))
    }
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.conn == nil {
        nd := &net.Dialer{}
        conn, err := nd.DialContext(ctx, "tcp", d.addr)
        if err != nil {
            return fmt.Errorf("tcp: dial %s: %w", d.addr, err)
        }
        d.conn = conn
        d.bw = bufio.NewWriter(conn)
    }
    if opts.Timeout > 0 {
        _ = d.conn.SetWriteDeadline(time.Now().Add(opts.Timeout))
    }
    if err := writeFrame(d.bw, b); err != nil {
        // Drop the broken connection; the next Deliver dials fresh.
        _ = d.conn.Close()
        d.conn, d.bw = nil, nil
        return fmt.Errorf("tcp: send to %s: %w", d.addr, err)
    }
    return nil
}

// Close tears down the current connection, if any.
func (d *Dialer) Close() error {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.conn == nil {
        return nil
    }
    err := d.conn.Close()
    d.conn, d.bw = nil, nil
    return err
}

// Listener implements transport.Incoming: it accepts TCP connections on addr
// and feeds every decoded envelope to the connected callback.
type Listener struct {
    addr  string
    codec codec.Codec
    log   *zap.Logger

    mu    sync.Mutex
    l     net.Listener
    conns map[net.Conn]struct{}
    done  chan struct{}
    wg    sync.WaitGroup
}

func NewListener(addr string, c codec.Codec, log *zap.Logger) *Listener {
    if log == nil {
        log = zap.NewNop()
    }
    return &Listener{addr: addr, codec: c, log: log}
}

func (l *Listener) Connect(fn func(env *transport.Envelope)) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.l != nil {
        return errors.New("tcp: listener already connected")
    }
    nl, err := net.Listen("tcp", l.addr)
    if err != nil {
        return fmt.Errorf("tcp: listen %s: %w", l.addr, err)
    }
    l.l = nl
    l.conns = make(map[net.Conn]struct{})
    l.done = make(chan struct{})
    l.wg.Add(1)
    go l.acceptLoop(nl, fn)
    return nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (l *Listener) Addr() net.Addr {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.l == nil {
        return nil
    }
    return l.l.Addr()
}

func (l *Listener) Disconnect() error {
    l.mu.Lock()
    if l.l == nil {
        l.mu.Unlock()
        return nil
    }
    nl := l.l
    l.l = nil
    close(l.done)
    for c := range l.conns {
        _ = c.Close()
    }
    l.conns = nil
    l.mu.Unlock()

    err := nl.Close()
    l.wg.Wait()
    return err
}

func (l *Listener) acceptLoop(nl net.Listener, fn func(env *transport.Envelope)) {
    defer l.wg.Done()
    for {
        c, err := nl.Accept()
        if err != nil {
            select {
            case <-l.done:
            default:
                l.log.Warn("tcp accept failed", zap.Error(err))
            }
            return
        }
        if !l.track(c) {
            _ = c.Close()
            return
        }
        l.wg.Add(1)
        go l.readLoop(c, fn)
    }
}

func (l *Listener) track(c net.Conn) bool {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.conns == nil {
        return false
    }
    l.conns[c] = struct{}{}
    return true
}

func (l *Listener) untrack(c net.Conn) {
    l.mu.Lock()
    if l.conns != nil {
        delete(l.conns, c)
    }
    l.mu.Unlock()
    _ = c.Close()
}

func (l *Listener) readLoop(c net.Conn, fn func(env *transport.Envelope)) {
    defer l.wg.Done()
    defer l.untrack(c)
    br := bufio.NewReader(c)
    for {
        b, err := readFrame(br)
        if err != nil {
            if err != io.EOF {
                select {
                case <-l.done:
                default:
                    l.log.Debug("tcp read failed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
                }
            }
            return
        }
        var env transport.Envelope
        if err := l.codec.Unmarshal(b, &env); err != nil {
            // A malformed frame is dropped; the stream itself is still framed.
            l.log.Warn("tcp frame decode failed", zap.Error(err))
            continue
        }
        fn(&env)
    }
}

func writeFrame(bw *bufio.Writer, b []byte) error {
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := bw.Write(lenbuf[:]); err != nil { return err }
    if _, err := bw.Write(b); err != nil { return err }
    return bw.Flush()
}

func readFrame(br *bufio.Reader) ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(br, lenbuf[:]); err != nil { return nil, err }
    n := int(binary.LittleEndian.Uint32(lenbuf[:]))
    if n > maxFrame {
        return nil, errors.New("invalid frame size")
    }
    buf := make([]byte, n)
    if _, err := io.ReadFull(br, buf); err != nil { return nil, err }
    return buf, nil
}

var _ transport.Outgoing = (*Dialer)(nil)
var _ transport.Incoming = (*Listener)(nil)
