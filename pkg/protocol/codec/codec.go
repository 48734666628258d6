// Package codec provides the marshaling formats wire transports use to frame
// envelopes. The hub core never touches a codec; serialization is strictly a
// transport concern.
package codec

import (
    "fmt"
    "strings"
)

// Codec marshals values for cross-instance exchange. Implementations must be
// deterministic enough for interop between independently built nodes.
type Codec interface {
    // Name is the short config alias, e.g. "json" or "cbor".
    Name() string
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps codec names and content types to implementations.
type Registry struct {
    byName map[string]Codec
    byType map[string]Codec
}

// NewRegistry returns a registry preloaded with JSON, CBOR and Protobuf.
func NewRegistry() *Registry {
    r := &Registry{byName: make(map[string]Codec), byType: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(CBOR())
    r.Register(Proto())
    return r
}

// Register adds or replaces a codec under its name and content type.
func (r *Registry) Register(c Codec) {
    r.byName[strings.ToLower(c.Name())] = c
    r.byType[c.ContentType()] = c
}

// ByName resolves a codec by its config alias. An empty name yields JSON.
func (r *Registry) ByName(name string) (Codec, error) {
    if strings.TrimSpace(name) == "" {
        return r.byName["json"], nil
    }
    c, ok := r.byName[strings.ToLower(name)]
    if !ok {
        return nil, fmt.Errorf("codec: unknown codec %q", name)
    }
    return c, nil
}

// ByContentType resolves a codec by MIME content type, or nil.
func (r *Registry) ByContentType(ct string) Codec { return r.byType[ct] }
