// Package protocol defines the routable message envelope exchanged between
// bridge instances. The envelope carries routing metadata only; the payload is
// opaque to the core and is interpreted solely by the communicating endpoints.
package protocol

import (
    "errors"
    "fmt"
)

// Envelope is the unit of communication between bridge instances.
//
// ID is assigned by the sending instance from a per-instance counter starting
// at 1; it is unique per sender for the lifetime of the process, not globally.
// ReplyID of zero means "not a reply" (ids start at 1, so zero is free as the
// unset sentinel).
type Envelope struct {
    // ID is the per-sender message id, stamped by the dispatching hub.
    ID uint64 `json:"id" cbor:"id"`

    // ReplyID correlates this envelope to an outstanding request. A non-zero
    // ReplyID makes the envelope a reply; it is then never dispatched to a
    // named handler even if Name is set.
    ReplyID uint64 `json:"replyId,omitempty" cbor:"replyId,omitempty"`

    // SenderID is the instance id of the originator. It is stamped by the
    // dispatching hub and never taken from caller input.
    SenderID string `json:"senderId" cbor:"senderId"`

    // TargetID is the instance id the envelope is ultimately destined for.
    TargetID string `json:"targetId" cbor:"targetId"`

    // ForwarderID is the instance id of the last relay that forwarded this
    // envelope. It terminates forwarding loops on cyclic topologies.
    ForwarderID string `json:"forwarderId,omitempty" cbor:"forwarderId,omitempty"`

    // TransportID, when set, pins delivery to a single named outgoing
    // transport instead of broadcasting.
    TransportID string `json:"transportId,omitempty" cbor:"transportId,omitempty"`

    // Name selects the remote handler. Required unless the envelope is a reply.
    Name string `json:"name,omitempty" cbor:"name,omitempty"`

    // Payload is caller-defined data. The core never inspects it.
    Payload any `json:"payload,omitempty" cbor:"payload,omitempty"`
}

var errMissingTarget = errors.New("envelope: missing target id")

// NewMessage builds a named envelope addressed to target.
func NewMessage(target, name string, payload any) *Envelope {
    return &Envelope{TargetID: target, Name: name, Payload: payload}
}

// NewReply builds the reply to req, addressed back to its sender and pinned to
// the given transport so the response travels the channel the request came in on.
func NewReply(req *Envelope, transportID string, payload any) *Envelope {
    return &Envelope{
        ReplyID:     req.ID,
        TargetID:    req.SenderID,
        TransportID: transportID,
        Payload:     payload,
    }
}

// IsReply reports whether the envelope correlates to an outstanding request.
func (e *Envelope) IsReply() bool { return e.ReplyID != 0 }

// Clone returns a shallow copy. The payload is shared; envelopes are treated
// as immutable after dispatch, so per-hop changes always go through a copy.
func (e *Envelope) Clone() *Envelope {
    c := *e
    return &c
}

// WithForwarder returns a copy stamped with the forwarding instance id.
// The original is left untouched so concurrent forwarders never alias.
func (e *Envelope) WithForwarder(id string) *Envelope {
    c := e.Clone()
    c.ForwarderID = id
    return c
}

// Validate checks the caller-supplied fields of an envelope about to be sent.
// ID and SenderID are stamped by the hub and deliberately not checked here.
func (e *Envelope) Validate() error {
    if e.TargetID == "" {
        return errMissingTarget
    }
    if e.ReplyID == 0 && e.Name == "" {
        return errors.New("envelope: missing name on non-reply message")
    }
    return nil
}

func (e *Envelope) String() string {
    if e.IsReply() {
        return fmt.Sprintf("reply[id=%d replyTo=%d %s->%s]", e.ID, e.ReplyID, e.SenderID, e.TargetID)
    }
    return fmt.Sprintf("msg[id=%d name=%s %s->%s]", e.ID, e.Name, e.SenderID, e.TargetID)
}
