package events

import "time"

// Event is anything the bus can carry. It is encoded as JSON, with the type
// copied into the message metadata so subscribers can filter cheaply.
type Event interface {
	EventType() string
	Timestamp() time.Time
}
