package codec

import (
    cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
    enc cbor.EncMode
    dec cbor.DecMode
}

// CBOR returns a canonical CBOR codec (RFC 8949 core deterministic profile).
// The encode/decode modes are built from static options that cannot fail, so
// construction panics rather than returning an error.
func CBOR() Codec {
    em, err := cbor.CanonicalEncOptions().EncMode()
    if err != nil { panic(err) }
    dm, err := cbor.DecOptions{}.DecMode()
    if err != nil { panic(err) }
    return cborCodec{enc: em, dec: dm}
}

func (cborCodec) Name() string        { return "cbor" }
func (cborCodec) ContentType() string { return "application/cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
