package domain

// Timestamps are 64-bit nanosecond counts since an arbitrary
// stream-defined epoch.

// SplitTime converts a nanosecond timestamp into whole seconds and the
// remaining microseconds. Both divisions truncate; there is no rounding.
func SplitTime(ts int64) (secs int64, usecs int64) {
	secs = ts / 1_000_000_000
	usecs = (ts - secs*1_000_000_000) / 1_000
	return secs, usecs
}

// CalibFunc adjusts a raw stream timestamp during load. The argv slice
// is owned by the stream and passed through untouched.
type CalibFunc func(ts int64, argv []int64) int64

// OffsetCalib shifts every timestamp by the constant argv[0]. It is the
// calibration used to time-align a second trace file against the first.
func OffsetCalib(ts int64, argv []int64) int64 {
	return ts + argv[0]
}
