package models

import (
	"strconv"
	"time"
)

// Gateway operations recorded in the call log
const (
	OperationGetReturnMessages  = "get_return_messages"
	OperationGetForwardStatuses = "get_forward_statuses"
	OperationSubmitMessages     = "submit_messages"
)

// APICallLog is one immutable record of a gateway call
type APICallLog struct {
	ID           int64
	CallTime     time.Time
	AccessID     string
	Operation    string
	GatewayURL   string
	CursorID     int64
	CursorUTC    string
	Success      bool
	ErrorID      int
	ErrorDesc    string
	NextStartID  int64
	NextStartUTC string
	More         bool
	MessageCount int
}

// CursorKind tells which filter a cursor carries
type CursorKind int

const (
	CursorByTime CursorKind = iota
	CursorByID
)

// Cursor is the watermark handed to the gateway. Exactly one of StartID and
// StartUTC is meaningful, selected by Kind.
type Cursor struct {
	Kind     CursorKind
	StartID  int64
	StartUTC string
}

// IDCursor builds a cursor by message id
func IDCursor(id int64) Cursor {
	return Cursor{Kind: CursorByID, StartID: id}
}

// TimeCursor builds a cursor by gateway formatted timestamp
func TimeCursor(utc string) Cursor {
	return Cursor{Kind: CursorByTime, StartUTC: utc}
}

func (c Cursor) String() string {
	if c.Kind == CursorByID {
		return "id:" + strconv.FormatInt(c.StartID, 10)
	}
	return "utc:" + c.StartUTC
}
