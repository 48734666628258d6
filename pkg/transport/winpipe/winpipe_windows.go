//go:build windows

// Package winpipe carries envelopes over Windows named pipes with the same
// u32 LE framing as the TCP transport. On other platforms the constructors
// report the transport as unavailable.
package winpipe

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

    winio "github.com/Microsoft/go-winio"
    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

const maxFrame = 1 << 24

// Dialer implements transport.Outgoing over a named pipe, e.g.
// `\\.\pipe\comms-bridge`.
type Dialer struct {
    path  string
    codec codec.Codec

    mu   sync.Mutex
    conn net.Conn
    bw   *bufio.Writer
}

func NewDialer(path string, c codec.Codec) (*Dialer, error) {
    return &Dialer{path: path, codec: c}, nil
}

func (d *Dialer) Deliver(ctx context.Context, env *transport.Envelope, opts transport.DeliverOptions) error {
    b, err := d.codec.Marshal(env)
    if err != nil {
        return fmt.Errorf("winpipe: encode envelope: %w", err)
    }
    // Reject before touching the connection: the receiver drops the whole
    // stream on a frame above maxFrame.
    if len(b) > maxFrame {
        return fmt.Errorf("winpipe: envelope exceeds frame limit: %d bytes", len(b))
    }
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.conn == nil {
        conn, err := winio.DialPipeContext(ctx, d.path)
        if err != nil {
            return fmt.Errorf("winpipe: dial %s: %w", d.path, err)
        }
        d.conn = conn
        d.bw = bufio.NewWriter(conn)
    }
    if opts.Timeout > 0 {
        _ = d.conn.SetWriteDeadline(time.Now().Add(opts.Timeout))
    }
    if err := writeFrame(d.bw, b); err != nil {
        _ = d.conn.Close()
        d.conn, d.bw = nil, nil
        return fmt.Errorf("winpipe: send to %s: %w", d.path, err)
    }
    return nil
}

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

// Listener implements transport.Incoming on a named pipe path.
type Listener struct {
    path  string
    codec codec.Codec
    log   *zap.Logger

    mu   sync.Mutex
    l    net.Listener
    done chan struct{}
    wg   sync.WaitGroup
}

func NewListener(path string, c codec.Codec, log *zap.Logger) (*Listener, error) {
    if log == nil {
        log = zap.NewNop()
    }
    return &Listener{path: path, codec: c, log: log}, nil
}

func (l *Listener) Connect(fn func(env *transport.Envelope)) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.l != nil {
        return errors.New("winpipe: listener already connected")
    }
    pl, err := winio.ListenPipe(l.path, nil)
    if err != nil {
        return fmt.Errorf("winpipe: listen %s: %w", l.path, err)
    }
    l.l = pl
    l.done = make(chan struct{})
    l.wg.Add(1)
    go l.acceptLoop(pl, fn)
    return nil
}

func (l *Listener) Disconnect() error {
    l.mu.Lock()
    if l.l == nil {
        l.mu.Unlock()
        return nil
    }
    pl := l.l
    l.l = nil
    close(l.done)
    l.mu.Unlock()

    err := pl.Close()
    l.wg.Wait()
    return err
}

func (l *Listener) acceptLoop(pl net.Listener, fn func(env *transport.Envelope)) {
    defer l.wg.Done()
    for {
        c, err := pl.Accept()
        if err != nil {
            select {
            case <-l.done:
            default:
                l.log.Warn("winpipe accept failed", zap.Error(err))
            }
            return
        }
        l.wg.Add(1)
        go l.readLoop(c, fn)
    }
}

func (l *Listener) readLoop(c net.Conn, fn func(env *transport.Envelope)) {
    defer l.wg.Done()
    defer func() { _ = c.Close() }()
    br := bufio.NewReader(c)
    for {
        b, err := readFrame(br)
        if err != nil {
            if err != io.EOF {
                select {
                case <-l.done:
                default:
                    l.log.Debug("winpipe read failed", zap.Error(err))
                }
            }
            return
        }
        var env transport.Envelope
        if err := l.codec.Unmarshal(b, &env); err != nil {
            l.log.Warn("winpipe frame decode failed", zap.Error(err))
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
