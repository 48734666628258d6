package protocol

import "testing"

func TestNewReplyAddressing(t *testing.T) {
    req := &Envelope{ID: 7, SenderID: "a", TargetID: "b", Name: "sum"}
    rep := NewReply(req, "tcp-in", 42)
    if rep.ReplyID != 7 {
        t.Fatalf("ReplyID=%d, want 7", rep.ReplyID)
    }
    if rep.TargetID != "a" {
        t.Fatalf("TargetID=%q, want sender of request", rep.TargetID)
    }
    if rep.TransportID != "tcp-in" {
        t.Fatalf("TransportID=%q, want pinned transport", rep.TransportID)
    }
    if !rep.IsReply() {
        t.Fatalf("expected IsReply")
    }
}

func TestWithForwarderDoesNotMutateOriginal(t *testing.T) {
    e := &Envelope{ID: 1, SenderID: "a", TargetID: "c", Name: "x"}
    f := e.WithForwarder("b")
    if f.ForwarderID != "b" {
        t.Fatalf("copy ForwarderID=%q, want b", f.ForwarderID)
    }
    if e.ForwarderID != "" {
        t.Fatalf("original mutated: ForwarderID=%q", e.ForwarderID)
    }
    if f.ID != e.ID || f.Name != e.Name {
        t.Fatalf("copy lost fields: %+v", f)
    }
}

func TestValidate(t *testing.T) {
    if err := (&Envelope{Name: "x"}).Validate(); err == nil {
        t.Fatalf("expected error for missing target")
    }
    if err := (&Envelope{TargetID: "b"}).Validate(); err == nil {
        t.Fatalf("expected error for non-reply without name")
    }
    if err := (&Envelope{TargetID: "b", ReplyID: 3}).Validate(); err != nil {
        t.Fatalf("reply without name should be valid: %v", err)
    }
    if err := (&Envelope{TargetID: "b", Name: "x"}).Validate(); err != nil {
        t.Fatalf("named message should be valid: %v", err)
    }
}
