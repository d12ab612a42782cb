// Package timesync converts the monotonic capture timestamps carried by
// socket events and extracted frames to wall-clock time.
//
// The kernel stamps events with CLOCK_MONOTONIC (nanoseconds since boot).
// This package converts them to absolute wall-clock time by reading the
// system boot time from /proc/stat and adding the monotonic offset.
package timesync
