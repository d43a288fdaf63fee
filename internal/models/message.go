package models

import "time"

// Terminated message state codes as reported by the gateway
const (
	StateSubmitted      = 0
	StateReceived       = 1
	StateError          = 2
	StateDeliveryFailed = 3
	StateTimedOut       = 4
	StateCancelled      = 5
	StateWaiting        = 6
	StateBroadcast      = 7
)

var stateNames = map[int]string{
	StateSubmitted:      "SUBMITTED",
	StateReceived:       "RECEIVED",
	StateError:          "ERROR",
	StateDeliveryFailed: "DELIVERY_FAILED",
	StateTimedOut:       "TIMED_OUT",
	StateCancelled:      "CANCELLED",
	StateWaiting:        "WAITING",
	StateBroadcast:      "BROADCAST_SUBMITTED",
}

// StateName returns the symbolic name of a terminated message state
func StateName(state int) string {
	if name, ok := stateNames[state]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsStateSuccess reports whether a closed message reached its destination
func IsStateSuccess(state int) bool {
	return state == StateReceived
}

// OriginatedMessage is a message sent by a remote terminal and retrieved
// from a mailbox. It is immutable once stored.
type OriginatedMessage struct {
	MessageID      int64
	AccessID       string
	MobileID       string
	SIN            int
	MIN            int
	MessageUTC     time.Time
	ReceiveUTC     time.Time
	RegionName     string
	OTAMessageSize int
	RawPayload     []byte
	PayloadJSON    string
}

// TerminatedMessage is a command submitted toward a terminal together with
// its merged delivery state.
type TerminatedMessage struct {
	MessageID       int64
	AccessID        string
	MobileID        string
	SIN             int
	MIN             int
	UserMessageID   int64
	SubmitUTC       time.Time
	State           int
	StateUTC        *time.Time
	IsClosed        bool
	ErrorID         int
	ErrorDesc       string
	ReferenceNumber int64
	OTAMessageSize  int
	RawPayload      []byte
	PayloadJSON     string
}

// StatusUpdate is one delivery status report for a terminated message
type StatusUpdate struct {
	MessageID       int64
	State           int
	StateUTC        time.Time
	IsClosed        bool
	ErrorID         int
	ErrorDesc       string
	ReferenceNumber int64
}

// MergeResult describes the outcome of merging a status update
type MergeResult int

const (
	MergeNotFound MergeResult = iota
	MergeUnchanged
	MergeUpdated
)

func (r MergeResult) String() string {
	switch r {
	case MergeUnchanged:
		return "unchanged"
	case MergeUpdated:
		return "updated"
	default:
		return "not_found"
	}
}
