package reconstructor

import (
	"encoding/json"
	"io"
	"os"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/zhangjyr/gocsv"
)

// ReportRow is one labeled event flattened for the CSV report, the
// tool-consumable counterpart of the nested JSON timeline.
type ReportRow struct {
	HostName    string         `csv:"host_name"`
	Device      string         `csv:"device"`
	Stream      string         `csv:"stream"`
	Layer       string         `csv:"layer"`
	Event       string         `csv:"event"`
	AvgTimeMs   domain.Average `csv:"avg_measured_time_ms"`
	AvgOffsetMs domain.Average `csv:"avg_iter_start_to_event_start_time_ms"`
	Samples     int            `csv:"samples"`
}

// ReportRows flattens timelines in their canonical order (devices and
// streams in first-seen order, events by ascending mean offset).
func ReportRows(timelines []*domain.RunTimeline) []*ReportRow {
	var rows []*ReportRow
	for _, timeline := range timelines {
		for de := timeline.Devices.Front(); de != nil; de = de.Next() {
			for se := de.Value.Streams.Front(); se != nil; se = se.Next() {
				for _, event := range se.Value {
					rows = append(rows, &ReportRow{
						HostName:    timeline.HostName,
						Device:      de.Key,
						Stream:      se.Key,
						Layer:       event.Layer,
						Event:       event.Name,
						AvgTimeMs:   event.AvgMeasuredTimeMs,
						AvgOffsetMs: event.AvgIterStartToEventStartTimeMs,
						Samples:     len(event.MeasuredTimesMs),
					})
				}
			}
		}
	}
	return rows
}

// WriteCSV writes the flat per-event report.
func WriteCSV(w io.Writer, timelines []*domain.RunTimeline) error {
	rows := ReportRows(timelines)
	return gocsv.Marshal(&rows, w)
}

func WriteCSVTo(path string, timelines []*domain.RunTimeline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteCSV(f, timelines)
}

// WriteJSON writes the device-first timelines as indented JSON, one object
// per reconstructed run.
func WriteJSON(w io.Writer, timelines []*domain.RunTimeline) error {
	out, err := json.MarshalIndent(timelines, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}

// WriteLayerJSON writes the layer-first derived views as indented JSON.
func WriteLayerJSON(w io.Writer, views []*domain.LayerTimeline) error {
	out, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}
