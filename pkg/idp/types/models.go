package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleInt64 can unmarshal both string and int64 JSON values
type FlexibleInt64 int64

func (f *FlexibleInt64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = FlexibleInt64(i)
		return nil
	}

	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	*f = FlexibleInt64(i)
	return nil
}

func (f FlexibleInt64) Int64() int64 {
	return int64(f)
}

// RawPayload is a message body as the gateway encodes it: a JSON array of
// byte values. A base64 string is accepted on input as well.
type RawPayload []byte

func (r RawPayload) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	ints := make([]int, len(r))
	for i, b := range r {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

func (r *RawPayload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		*r = decoded
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("raw payload byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*r = out
	return nil
}

// Field is one decoded message field. Arrays carry Elements instead of a Value.
type Field struct {
	Name     string    `json:"Name"`
	Value    string    `json:"Value,omitempty"`
	Type     string    `json:"Type,omitempty"`
	Elements []Element `json:"Elements,omitempty"`
}

// Element is one row of an array field
type Element struct {
	Index  int     `json:"Index"`
	Fields []Field `json:"Fields"`
}

// Payload is a message decoded by the gateway's message definitions
type Payload struct {
	Name      string  `json:"Name"`
	SIN       int     `json:"SIN"`
	MIN       int     `json:"MIN"`
	IsForward bool    `json:"IsForward"`
	Fields    []Field `json:"Fields"`
}

// ReturnMessage is a mobile-originated message as listed by get_return_messages
type ReturnMessage struct {
	ID             FlexibleInt64 `json:"ID"`
	MessageUTC     string        `json:"MessageUTC"`
	ReceiveUTC     string        `json:"ReceiveUTC"`
	SIN            int           `json:"SIN"`
	MIN            int           `json:"MIN,omitempty"`
	MobileID       string        `json:"MobileID"`
	RegionName     string        `json:"RegionName"`
	OTAMessageSize int           `json:"OTAMessageSize"`
	RawPayload     RawPayload    `json:"RawPayload,omitempty"`
	Payload        *Payload      `json:"Payload,omitempty"`
}

// ReturnMessagesResponse is the body of get_return_messages
type ReturnMessagesResponse struct {
	ErrorID      int             `json:"ErrorID"`
	More         bool            `json:"More"`
	NextStartUTC string          `json:"NextStartUTC"`
	NextStartID  FlexibleInt64   `json:"NextStartID"`
	Messages     []ReturnMessage `json:"Messages"`
}

// ForwardStatus is one delivery status report
type ForwardStatus struct {
	ForwardMessageID FlexibleInt64 `json:"ForwardMessageID"`
	ReferenceNumber  FlexibleInt64 `json:"ReferenceNumber"`
	StateUTC         string        `json:"StateUTC"`
	State            int           `json:"State"`
	ErrorID          int           `json:"ErrorID"`
	IsClosed         bool          `json:"IsClosed"`
}

// ForwardStatusesResponse is the body of get_forward_statuses
type ForwardStatusesResponse struct {
	ErrorID      int             `json:"ErrorID"`
	More         bool            `json:"More"`
	NextStartUTC string          `json:"NextStartUTC"`
	Statuses     []ForwardStatus `json:"Statuses"`
}

// ForwardMessage is one command to submit. Exactly one of RawPayload and
// Payload is set.
type ForwardMessage struct {
	DestinationID string     `json:"DestinationID"`
	UserMessageID int64      `json:"UserMessageID,omitempty"`
	RawPayload    RawPayload `json:"RawPayload,omitempty"`
	Payload       *Payload   `json:"Payload,omitempty"`
}

// SubmitRequest is the body of submit_messages
type SubmitRequest struct {
	AccessID string           `json:"accessID"`
	Password string           `json:"password"`
	Messages []ForwardMessage `json:"messages"`
}

// Submission is the gateway's answer for one submitted message
type Submission struct {
	ForwardMessageID     FlexibleInt64 `json:"ForwardMessageID"`
	DestinationID        string        `json:"DestinationID"`
	ErrorID              int           `json:"ErrorID"`
	UserMessageID        int64         `json:"UserMessageID"`
	StateUTC             string        `json:"StateUTC"`
	TerminalWakeupPeriod *string       `json:"TerminalWakeupPeriod,omitempty"`
	OTAMessageSize       int           `json:"OTAMessageSize"`
}

// SubmitResponse is the body returned by submit_messages
type SubmitResponse struct {
	ErrorID     int          `json:"ErrorID"`
	Submissions []Submission `json:"Submissions"`
}

// ErrorDefinition names a gateway error id
type ErrorDefinition struct {
	ID          int    `json:"ID"`
	Name        string `json:"Name"`
	Description string `json:"Description"`
}

// Auth is a mailbox credential pair
type Auth struct {
	AccessID string
	Password string
}

// Filter selects where a listing call starts. StartID wins when positive.
type Filter struct {
	StartID  int64
	StartUTC string
}
