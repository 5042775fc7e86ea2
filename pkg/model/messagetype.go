package model

// MessageType identifies the payload of a message sent to viewers
type MessageType string

const (
	MTSnapshot MessageType = "snapshot" // full merged state of one source
	MTStatus   MessageType = "status"   // gateway status of all sources
	MTAck      MessageType = "ack"      // confirms a subscribe/unsubscribe request
	MTError    MessageType = "error"    // request could not be processed
)
