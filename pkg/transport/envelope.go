package transport

import "github.com/hone-labs/comms-bridge/pkg/protocol"

// Envelope is re-exported so transport implementations and the capability
// contracts above can be read without chasing the protocol package.
type Envelope = protocol.Envelope
