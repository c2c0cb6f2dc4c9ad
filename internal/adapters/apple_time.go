package adapters

import (
	"math"
	"time"
)

// appleEpoch is the reference date of Core Data / Messages timestamps.
var appleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// nanosecondThreshold separates second-scale values from the nanosecond-scale
// values written by newer Messages databases.
const nanosecondThreshold = 1e12

// maxOffsetSeconds bounds offsets to values whose Unix milliseconds fit in int64.
const maxOffsetSeconds = 1e15

// AppleTime converts an offset from 2001-01-01 UTC to a time. Magnitudes above
// 1e12 are nanoseconds, anything else seconds. Zero, non-finite and
// out-of-range inputs return the Unix epoch with known=false.
func AppleTime(raw float64) (t time.Time, known bool) {
	if raw == 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return time.Unix(0, 0).UTC(), false
	}
	secs := raw
	if math.Abs(raw) > nanosecondThreshold {
		secs = raw / 1e9
	}
	if math.Abs(secs) >= maxOffsetSeconds {
		return time.Unix(0, 0).UTC(), false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(appleEpoch.Unix()+int64(whole), int64(math.Round(frac*1e9))).UTC(), true
}
