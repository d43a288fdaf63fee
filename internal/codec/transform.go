package codec

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// CoordinateScale converts raw coordinates (thousandths of a minute) to degrees
	CoordinateScale = 60000.0
	// PingClockModulus is the wrap of the 16-bit ping seconds counter
	PingClockModulus = 65536
	secondsPerDay    = 86400

	// DefaultWakeupSeconds is used for unrecognized wakeup codes
	DefaultWakeupSeconds = 5
)

// Coordinate converts a raw latitude or longitude to decimal degrees rounded
// half-up to six places.
func Coordinate(raw int64) float64 {
	return roundTo(float64(raw)/CoordinateScale, 6)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Floor(v*scale+0.5) / scale
}

// Heading converts a raw heading (2 degree steps) to degrees
func Heading(raw int64) int {
	return int(raw * 2)
}

type wakeupPeriod struct {
	name    string
	seconds int
}

var wakeupPeriods = []wakeupPeriod{
	{"None", 5},
	{"Seconds30", 30},
	{"Seconds60", 60},
	{"Minutes3", 180},
	{"Minutes10", 600},
	{"Minutes30", 1800},
	{"Minutes2", 120},
	{"Minutes5", 300},
	{"Minutes15", 900},
	{"Minutes20", 1200},
}

// WakeupSeconds maps a wakeup period code, numeric or symbolic, to seconds.
// Unknown codes log a warning and fall back to DefaultWakeupSeconds.
func WakeupSeconds(code string, logger *logrus.Logger) int {
	code = strings.TrimSpace(code)
	if n, err := strconv.Atoi(code); err == nil {
		if n >= 0 && n < len(wakeupPeriods) {
			return wakeupPeriods[n].seconds
		}
	} else {
		for _, p := range wakeupPeriods {
			if p.name == code {
				return p.seconds
			}
		}
	}
	if logger != nil {
		logger.WithField("wakeup_period", code).Warn("Unrecognized wakeup period, using default")
	}
	return DefaultWakeupSeconds
}

var metricsPeriods = []string{
	"SinceReset",
	"LastPartialMinute",
	"LastFullMinute",
	"LastPartialHour",
	"LastFullHour",
	"LastPartialDay",
	"LastFullDay",
}

// MetricsPeriod names the interval a modem metrics report covers.
// Codes outside 0..6 are Reserved.
func MetricsPeriod(code string) string {
	code = strings.TrimSpace(code)
	if n, err := strconv.Atoi(code); err == nil {
		if n >= 0 && n < len(metricsPeriods) {
			return metricsPeriods[n]
		}
		return "Reserved"
	}
	for _, p := range metricsPeriods {
		if p == code {
			return p
		}
	}
	return "Reserved"
}

// DayMinuteTime rebuilds an absolute UTC time from a day-of-month and
// minute-of-day, taking year and month from the reference time.
func DayMinuteTime(reference time.Time, dayOfMonth, minuteOfDay int) time.Time {
	ref := reference.UTC()
	return time.Date(ref.Year(), ref.Month(), dayOfMonth, minuteOfDay/60, minuteOfDay%60, 0, 0, time.UTC)
}

// PingTime is the modem's view of t: UTC seconds of day modulo the ping clock
func PingTime(t time.Time) int {
	u := t.UTC()
	return (u.Hour()*3600 + u.Minute()*60 + u.Second()) % PingClockModulus
}

// unwrapPing lifts later past earlier when the ping clock wrapped in between
func unwrapPing(earlier, later int) int {
	if later < earlier {
		later += PingClockModulus
		if later > secondsPerDay-1 {
			later -= secondsPerDay
		}
	}
	return later
}

// Latency holds ping latencies in seconds
type Latency struct {
	MobileTerminated int
	MobileOriginated int
	RoundTrip        int
}

// PingLatency computes latencies from request, response and receive clock
// values. It returns the unwrapped response and receive times alongside.
func PingLatency(request, response, receive int) (Latency, int, int) {
	response = unwrapPing(request, response)
	receive = unwrapPing(response, receive)
	l := Latency{
		MobileTerminated: response - request,
		MobileOriginated: receive - response,
	}
	l.RoundTrip = l.MobileTerminated + l.MobileOriginated
	return l, response, receive
}
