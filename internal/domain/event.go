package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Average is an arithmetic mean over a sample sequence. Empty sequences yield
// NaN, which serializes as JSON null so a run containing a degenerate event
// still produces a valid report.
type Average float64

func UndefinedAverage() Average {
	return Average(math.NaN())
}

func (a Average) IsDefined() bool {
	return !math.IsNaN(float64(a))
}

func (a Average) MarshalJSON() ([]byte, error) {
	if !a.IsDefined() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(a))
}

func (a *Average) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = UndefinedAverage()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Average(v)
	return nil
}

// StreamKey is the raw stream identifier recorded by the native profiler.
// Depending on the profiler build it is emitted either as an integer (the
// driver handle) or as a string; both forms are accepted and normalized to a
// string. A StreamKey is only unique within a single profiling run.
type StreamKey string

func (k *StreamKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = StreamKey(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("stream identifier must be a string or an integer, got %s", string(data))
	}
	*k = StreamKey(strconv.FormatInt(n, 10))
	return nil
}

func (k StreamKey) String() string {
	return string(k)
}

// RawEvent is one measured occurrence of a named kernel within one training
// iteration, on one device/stream, as recorded by the native profiler. The
// sample slices carry one entry per repeated profiling run and always have
// equal length.
//
// RawEvent data is immutable once loaded; the Avg* fields are derived by the
// loader and are not part of the wire format.
type RawEvent struct {
	Name     string    `json:"event_name"`
	DeviceID int       `json:"device_id"`
	Stream   StreamKey `json:"stream"`

	// MetTimesWithinThisStream is the 0-based count of how many times an
	// event with this name had already been seen on this stream within the
	// iteration. It disambiguates same-named kernels belonging to different
	// logical layers.
	MetTimesWithinThisStream int `json:"met_times_within_this_stream"`

	MeasuredTimesMs              []float64 `json:"measured_times_ms"`
	IterStartToEventStartTimesMs []float64 `json:"iter_start_to_event_start_times_ms"`

	// StartIndex and EndIndex are ordering hints assigned by the profiler at
	// event registration time. StartIndex drives the pre-labeling sort.
	StartIndex int `json:"start_index,omitempty"`
	EndIndex   int `json:"end_index,omitempty"`

	AvgMeasuredTimeMs              Average `json:"-"`
	AvgIterStartToEventStartTimeMs Average `json:"-"`
}

func (e *RawEvent) String() string {
	return fmt.Sprintf("RawEvent[Name=%s, DeviceID=%d, Stream=%s, Occurrence=%d, Samples=%d]",
		e.Name, e.DeviceID, e.Stream, e.MetTimesWithinThisStream, len(e.MeasuredTimesMs))
}

// ProfileRun is one captured per-process profiling log.
type ProfileRun struct {
	HostName   string      `json:"host_name"`
	IterTimeMs []float64   `json:"iter_time_ms"`
	Events     []*RawEvent `json:"events"`

	// SourcePath is the log file this run was loaded from.
	SourcePath string `json:"-"`

	AvgIterTimeMs Average `json:"-"`

	// Warnings collects non-fatal defects observed while aggregating the run,
	// such as events whose sample sequences were empty.
	Warnings []error `json:"-"`
}

func (r *ProfileRun) String() string {
	return fmt.Sprintf("ProfileRun[Host=%s, Iterations=%d, Events=%d, Source=%s]",
		r.HostName, len(r.IterTimeMs), len(r.Events), r.SourcePath)
}
