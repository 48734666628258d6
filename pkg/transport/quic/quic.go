// Package quic carries envelopes over a QUIC bidirectional stream with the
// same u32 LE framing as the TCP transport. The listener side runs with an
// ephemeral self-signed certificate; deployments that need verified peers
// supply their own TLS config.
package quic

import (
    "bufio"
    "context"
    "crypto/rand"
    "crypto/rsa"
    "crypto/tls"
    "crypto/x509"
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "math/big"
    "net"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/zap"

    "github.com/hone-labs/comms-bridge/pkg/protocol/codec"
    "github.com/hone-labs/comms-bridge/pkg/transport"
)

const (
    alpnProto = "comms-bridge"
    maxFrame  = 1 << 24
)

// Dialer implements transport.Outgoing over one QUIC connection and one
// bidirectional stream, opened lazily on first Deliver.
type Dialer struct {
    addr    string
    codec   codec.Codec
    tlsConf *tls.Config

    mu     sync.Mutex
    conn   quicgo.Connection
    stream quicgo.Stream
    bw     *bufio.Writer
}

// NewDialer builds a dialer for addr. A nil tlsConf skips peer verification,
// matching the self-signed listener default.
func NewDialer(addr string, c codec.Codec, tlsConf *tls.Config) *Dialer {
    if tlsConf == nil {
        tlsConf = &tls.Config{
            InsecureSkipVerify: true, // peer identity is an application concern
            NextProtos:         []string{alpnProto},
            MinVersion:         tls.VersionTLS13,
        }
    }
    return &Dialer{addr: addr, codec: c, tlsConf: tlsConf}
}

func (d *Dialer) Deliver(ctx context.Context, env *transport.Envelope, opts transport.DeliverOptions) error {
    b, err := d.codec.Marshal(env)
    if err != nil {
        return fmt.Errorf("quic: encode envelope: %w", err)
    }
    // Reject before touching the connection: the receiver drops the whole
    // stream on a frame above maxFrame.
    if len(b) > maxFrame {
        return fmt.Errorf("quic: envelope exceeds frame limit: %d bytes", len(b))
    }
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.stream == nil {
        conn, err := quicgo.DialAddr(ctx, d.addr, d.tlsConf, nil)
        if err != nil {
            return fmt.Errorf("quic: dial %s: %w", d.addr, err)
        }
        stream, err := conn.OpenStreamSync(ctx)
        if err != nil {
            _ = conn.CloseWithError(0, "")
            return fmt.Errorf("quic: open stream: %w", err)
        }
        d.conn, d.stream = conn, stream
        d.bw = bufio.NewWriter(stream)
    }
    if opts.Timeout > 0 {
        _ = d.stream.SetWriteDeadline(time.Now().Add(opts.Timeout))
    }
    if err := writeFrame(d.bw, b); err != nil {
        d.reset()
        return fmt.Errorf("quic: send to %s: %w", d.addr, err)
    }
    return nil
}

func (d *Dialer) reset() {
    if d.stream != nil {
        _ = d.stream.Close()
    }
    if d.conn != nil {
        _ = d.conn.CloseWithError(0, "")
    }
    d.conn, d.stream, d.bw = nil, nil, nil
}

func (d *Dialer) Close() error {
    d.mu.Lock()
    defer d.mu.Unlock()
    d.reset()
    return nil
}

// Listener implements transport.Incoming: it accepts QUIC connections on addr
// and reads envelope frames from every inbound stream.
type Listener struct {
    addr    string
    codec   codec.Codec
    log     *zap.Logger
    tlsConf *tls.Config

    mu   sync.Mutex
    l    *quicgo.Listener
    done chan struct{}
    wg   sync.WaitGroup
}

// NewListener builds a listener for addr. A nil tlsConf gets an ephemeral
// self-signed certificate.
func NewListener(addr string, c codec.Codec, tlsConf *tls.Config, log *zap.Logger) *Listener {
    if log == nil {
        log = zap.NewNop()
    }
    if tlsConf == nil {
        cert, err := selfSignedCert()
        if err == nil {
            tlsConf = &tls.Config{
                Certificates: []tls.Certificate{cert},
                NextProtos:   []string{alpnProto},
                MinVersion:   tls.VersionTLS13,
            }
        }
    }
    return &Listener{addr: addr, codec: c, tlsConf: tlsConf, log: log}
}

func (l *Listener) Connect(fn func(env *transport.Envelope)) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.l != nil {
        return errors.New("quic: listener already connected")
    }
    if l.tlsConf == nil {
        return errors.New("quic: no usable TLS configuration")
    }
    ql, err := quicgo.ListenAddr(l.addr, l.tlsConf, nil)
    if err != nil {
        return fmt.Errorf("quic: listen %s: %w", l.addr, err)
    }
    l.l = ql
    l.done = make(chan struct{})
    l.wg.Add(1)
    go l.acceptLoop(ql, fn)
    return nil
}

// Addr returns the bound address, useful when addr was ":0".
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
    ql := l.l
    l.l = nil
    close(l.done)
    l.mu.Unlock()

    err := ql.Close()
    l.wg.Wait()
    return err
}

func (l *Listener) acceptLoop(ql *quicgo.Listener, fn func(env *transport.Envelope)) {
    defer l.wg.Done()
    ctx := context.Background()
    for {
        conn, err := ql.Accept(ctx)
        if err != nil {
            select {
            case <-l.done:
            default:
                l.log.Warn("quic accept failed", zap.Error(err))
            }
            return
        }
        l.wg.Add(1)
        go l.connLoop(conn, fn)
    }
}

func (l *Listener) connLoop(conn quicgo.Connection, fn func(env *transport.Envelope)) {
    defer l.wg.Done()
    defer func() { _ = conn.CloseWithError(0, "") }()
    for {
        stream, err := conn.AcceptStream(context.Background())
        if err != nil {
            return
        }
        l.wg.Add(1)
        go l.readLoop(stream, fn)
    }
}

func (l *Listener) readLoop(stream quicgo.Stream, fn func(env *transport.Envelope)) {
    defer l.wg.Done()
    defer func() { _ = stream.Close() }()
    br := bufio.NewReader(stream)
    for {
        b, err := readFrame(br)
        if err != nil {
            if err != io.EOF {
                select {
                case <-l.done:
                default:
                    l.log.Debug("quic read failed", zap.Error(err))
                }
            }
            return
        }
        var env transport.Envelope
        if err := l.codec.Unmarshal(b, &env); err != nil {
            l.log.Warn("quic frame decode failed", zap.Error(err))
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

// selfSignedCert generates a short-lived self-signed TLS certificate for
// local/loopback use.
func selfSignedCert() (tls.Certificate, error) {
    priv, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil { return tls.Certificate{}, err }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

var _ transport.Outgoing = (*Dialer)(nil)
var _ transport.Incoming = (*Listener)(nil)
