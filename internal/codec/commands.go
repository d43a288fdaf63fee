package codec

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"satsync/pkg/idp/types"
)

// ErrUnknownCommand is returned for names missing from the catalog
var ErrUnknownCommand = errors.New("unknown command")

// Reset types accepted by modemReset
const (
	ResetModemPreserve      = 0
	ResetModemFlush         = 1
	ResetTerminal           = 2
	ResetTerminalModemFlush = 3
)

// Command describes an outbound command. Build returns the fields of a
// fresh payload so values such as the ping clock are taken at encode time.
type Command struct {
	Name  string
	SIN   int
	MIN   int
	Build func(now time.Time) []types.Field
}

var catalog = map[string]Command{
	"modemReset": {
		Name: "modemReset",
		SIN:  CoreModemSIN,
		MIN:  68,
		Build: func(time.Time) []types.Field {
			return []types.Field{{Name: "resetType", Value: strconv.Itoa(ResetModemPreserve), Type: "enum"}}
		},
	},
	"getLocation": {
		Name: "getLocation",
		SIN:  CoreModemSIN,
		MIN:  72,
	},
	"getConfiguration": {
		Name: "getConfiguration",
		SIN:  CoreModemSIN,
		MIN:  97,
	},
	"pingModem": {
		Name: "pingModem",
		SIN:  CoreModemSIN,
		MIN:  112,
		Build: func(now time.Time) []types.Field {
			return []types.Field{{Name: "requestTime", Value: strconv.Itoa(PingTime(now)), Type: "unsignedint"}}
		},
	},
}

// Commands lists catalog command names in order
func Commands() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupCommand returns the catalog entry for name
func LookupCommand(name string) (Command, bool) {
	cmd, ok := catalog[name]
	return cmd, ok
}

// Encode builds the payload of a catalog command
func Encode(name string, now time.Time) (*types.Payload, error) {
	cmd, ok := catalog[name]
	if !ok {
		return nil, ErrUnknownCommand
	}
	fields := []types.Field{}
	if cmd.Build != nil {
		fields = cmd.Build(now)
	}
	return &types.Payload{
		Name:      cmd.Name,
		SIN:       cmd.SIN,
		MIN:       cmd.MIN,
		IsForward: true,
		Fields:    fields,
	}, nil
}

// SplitRawPayload returns the SIN and MIN leading a raw payload
func SplitRawPayload(raw []byte) (sin, min int, ok bool) {
	if len(raw) < 2 {
		return 0, 0, false
	}
	return int(raw[0]), int(raw[1]), true
}
