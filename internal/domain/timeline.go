package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
)

// LabeledEvent is a RawEvent resolved against an InterestSpec: it carries the
// logical layer the event was attributed to, the composite label
// "<layer>.<event_name>", and the per-sample statistics computed at load time.
// LabeledEvents are read-only projections; reconstructing the same run twice
// yields identical values.
type LabeledEvent struct {
	Label string `json:"label"`
	Layer string `json:"layer"`
	Name  string `json:"name"`

	DeviceID int    `json:"device_id"`
	StreamID string `json:"stream_id"`

	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"`

	MeasuredTimesMs              []float64 `json:"measured_times_ms"`
	IterStartToEventStartTimesMs []float64 `json:"iter_start_to_event_start_times_ms"`

	AvgMeasuredTimeMs              Average `json:"avg_measured_time_ms"`
	AvgIterStartToEventStartTimeMs Average `json:"avg_iter_start_to_event_start_time_ms"`
}

func (e *LabeledEvent) String() string {
	return fmt.Sprintf("LabeledEvent[Label=%s, Device=%d, Stream=%s, AvgTime=%.3fms, AvgOffset=%.3fms]",
		e.Label, e.DeviceID, e.StreamID, float64(e.AvgMeasuredTimeMs), float64(e.AvgIterStartToEventStartTimeMs))
}

// DeviceTimeline maps synthetic stream labels ("stream_0", "stream_1", ...)
// to the labeled events observed on that stream, sorted by ascending mean
// offset from iteration start. Stream labels are inserted in first-seen
// order, which the map preserves.
type DeviceTimeline struct {
	Streams *orderedmap.OrderedMap[string, []*LabeledEvent]
}

func NewDeviceTimeline() *DeviceTimeline {
	return &DeviceTimeline{Streams: orderedmap.NewOrderedMap[string, []*LabeledEvent]()}
}

func (d *DeviceTimeline) MarshalJSON() ([]byte, error) {
	return marshalOrdered(d.Streams)
}

// RunTimeline is the reconstructed view of one ProfileRun: labeled events
// grouped by device, then by synthetic stream. Device keys ("device_0", ...)
// appear in first-seen order within the run.
type RunTimeline struct {
	HostName      string
	AvgIterTimeMs Average
	Devices       *orderedmap.OrderedMap[string, *DeviceTimeline]
}

func NewRunTimeline(hostName string, avgIterTimeMs Average) *RunTimeline {
	return &RunTimeline{
		HostName:      hostName,
		AvgIterTimeMs: avgIterTimeMs,
		Devices:       orderedmap.NewOrderedMap[string, *DeviceTimeline](),
	}
}

// Device returns the timeline of one device, creating it on first use.
func (t *RunTimeline) Device(key string) *DeviceTimeline {
	device, ok := t.Devices.Get(key)
	if !ok {
		device = NewDeviceTimeline()
		t.Devices.Set(key, device)
	}
	return device
}

// Events walks the timeline in its canonical order (device insertion order,
// stream insertion order, per-stream event order) and returns the flat
// sequence of labeled events.
func (t *RunTimeline) Events() []*LabeledEvent {
	var events []*LabeledEvent
	for el := t.Devices.Front(); el != nil; el = el.Next() {
		for se := el.Value.Streams.Front(); se != nil; se = se.Next() {
			events = append(events, se.Value...)
		}
	}
	return events
}

func (t *RunTimeline) MarshalJSON() ([]byte, error) {
	devices, err := marshalOrdered(t.Devices)
	if err != nil {
		return nil, err
	}
	avg, err := t.AvgIterTimeMs.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("{\"host_name\":")
	host, err := json.Marshal(t.HostName)
	if err != nil {
		return nil, err
	}
	buf.Write(host)
	buf.WriteString(",\"avg_iter_time_ms\":")
	buf.Write(avg)
	buf.WriteString(",\"events\":")
	buf.Write(devices)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// LayerTimeline is the layer-first derived view of a RunTimeline:
// layer -> device -> stream -> events. It is computed from the same
// LabeledEvent set as the canonical device-first grouping, never from a
// second labeling pass.
type LayerTimeline struct {
	HostName      string
	AvgIterTimeMs Average
	Layers        *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, *DeviceTimeline]]
}

func NewLayerTimeline(hostName string, avgIterTimeMs Average) *LayerTimeline {
	return &LayerTimeline{
		HostName:      hostName,
		AvgIterTimeMs: avgIterTimeMs,
		Layers:        orderedmap.NewOrderedMap[string, *orderedmap.OrderedMap[string, *DeviceTimeline]](),
	}
}

// Layer returns the device map of one layer, creating it on first use.
func (t *LayerTimeline) Layer(name string) *orderedmap.OrderedMap[string, *DeviceTimeline] {
	layer, ok := t.Layers.Get(name)
	if !ok {
		layer = orderedmap.NewOrderedMap[string, *DeviceTimeline]()
		t.Layers.Set(name, layer)
	}
	return layer
}

func (t *LayerTimeline) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\"host_name\":")
	host, err := json.Marshal(t.HostName)
	if err != nil {
		return nil, err
	}
	buf.Write(host)

	avg, err := t.AvgIterTimeMs.MarshalJSON()
	if err != nil {
		return nil, err
	}
	buf.WriteString(",\"avg_iter_time_ms\":")
	buf.Write(avg)

	buf.WriteString(",\"layers\":{")
	first := true
	for el := t.Layers.Front(); el != nil; el = el.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(el.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		devices, err := marshalOrdered(el.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(devices)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// marshalOrdered serializes an ordered map as a JSON object whose keys appear
// in insertion order. encoding/json sorts plain map keys lexicographically,
// which would scramble the first-seen stream/device ordering.
func marshalOrdered[V any](m *orderedmap.OrderedMap[string, V]) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for el := m.Front(); el != nil; el = el.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(el.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(el.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
