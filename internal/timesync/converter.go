package timesync

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Converter handles conversion from monotonic capture timestamps to
// wall-clock time.
type Converter struct {
	bootTime time.Time
}

// NewConverter creates a new time converter anchored at the system boot time
// from /proc/stat. If reading fails it falls back to a conservative estimate
// so tracing can continue with degraded timestamp accuracy.
func NewConverter() (*Converter, error) {
	bootTime, err := getSystemBootTime()
	if err != nil {
		bootTime = time.Now().Add(-time.Hour)
	}

	return &Converter{bootTime: bootTime}, nil
}

// MonotonicToWallClock converts a CLOCK_MONOTONIC timestamp (nanoseconds
// since boot, as stamped on captured frames) to wall-clock time.
func (c *Converter) MonotonicToWallClock(monotonicNanos uint64) time.Time {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.bootTime.Add(time.Duration(monotonicNanos))
}

// BootTime returns the system boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

// getSystemBootTime reads the btime line from /proc/stat.
func getSystemBootTime() (time.Time, error) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to open /proc/stat: %w", err)
	}
	defer func() {
		_ = file.Close() //nolint:errcheck // Read-only file, defer cleanup
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		bootTimeSec, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse btime: %w", err)
		}
		return time.Unix(bootTimeSec, 0), nil
	}

	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("error reading /proc/stat: %w", err)
	}

	return time.Time{}, fmt.Errorf("btime not found in /proc/stat")
}
