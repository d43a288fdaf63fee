package codec

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"satsync/pkg/idp/types"
)

// CoreModemSIN is the service id of messages defined by the modem itself
const CoreModemSIN = 0

var (
	// ErrNoSchema is returned for messages without a field table
	ErrNoSchema = errors.New("no schema for message")
	// ErrMalformedField is returned when a known field cannot be parsed
	ErrMalformedField = errors.New("malformed field")
)

// Meta is the envelope information a decoder may need
type Meta struct {
	MobileID   string
	SIN        int
	MIN        int
	MessageUTC time.Time
	ReceiveUTC time.Time
}

type decodeFunc func(fields []types.Field, meta Meta, logger *logrus.Logger) (Telemetry, error)

func bind[T any, PT interface {
	*T
	Telemetry
}](table fieldTable[T]) decodeFunc {
	return func(fields []types.Field, meta Meta, logger *logrus.Logger) (Telemetry, error) {
		rec, err := table.decode(fields, meta, logger)
		if err != nil {
			return nil, err
		}
		return PT(rec), nil
	}
}

// coreModemSchemas is keyed by MIN
var coreModemSchemas = map[int]decodeFunc{
	0:   bind(registrationTable),
	1:   bind(registrationTable),
	2:   bind(protocolErrorTable),
	70:  bind(sleepScheduleTable),
	72:  bind(locationTable),
	97:  bind(registrationTable),
	98:  bind(lastRxInfoTable),
	99:  bind(rxMetricsTable),
	100: bind(txMetricsTable),
	112: bind(pingReplyTable),
	113: bind(networkPingTable),
	115: bind(broadcastIDsTable),
}

// Decoder turns gateway payloads into typed telemetry
type Decoder struct {
	logger *logrus.Logger
}

// NewDecoder creates a decoder. A nil logger discards unknown-field notices.
func NewDecoder(logger *logrus.Logger) *Decoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Decoder{logger: logger}
}

// HasSchema reports whether (sin, min) can be decoded
func HasSchema(sin, min int) bool {
	if sin != CoreModemSIN {
		return false
	}
	_, ok := coreModemSchemas[min]
	return ok
}

// IsVendorLocked reports the message a terminal sends when its firmware
// refuses the configured service.
func IsVendorLocked(sin, min int) bool {
	return sin == 15 && min == 255
}

// Decode decodes payload. The SIN and MIN of payload override those in meta.
func (d *Decoder) Decode(payload types.Payload, meta Meta) (Telemetry, error) {
	meta.SIN = payload.SIN
	meta.MIN = payload.MIN
	if payload.SIN != CoreModemSIN {
		return nil, ErrNoSchema
	}
	decode, ok := coreModemSchemas[payload.MIN]
	if !ok {
		return nil, ErrNoSchema
	}
	return decode(payload.Fields, meta, d.logger)
}
