// Package reconstructor turns the raw per-process profiling logs written by
// the native embedding engine into labeled, ordered timelines ready for
// reporting. It is a pure post-hoc analysis pass: logs are immutable inputs,
// every reconstruction is computed fresh, and no state survives a call.
package reconstructor

import (
	"fmt"
	"os"
	"sort"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Reconstructor struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger
	atom          *zap.AtomicLevel

	logSuffix      string
	outlierStdDevs float64
}

func New(opts *domain.Configuration, atom *zap.AtomicLevel) *Reconstructor {
	r := &Reconstructor{
		atom:           atom,
		logSuffix:      opts.LogSuffix,
		outlierStdDevs: opts.OutlierStdDev,
	}

	if r.logSuffix == "" {
		r.logSuffix = ".prof.json"
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), os.Stdout, atom)
	r.logger = zap.New(core, zap.Development())
	r.sugaredLogger = r.logger.Sugar()

	return r
}

// Reconstruct labels and groups the events of every given run against the
// interest spec, one timeline per run. Events matching no layer are silently
// excluded. The result is a read-only projection: calling Reconstruct twice
// over the same runs yields identical timelines.
func (r *Reconstructor) Reconstruct(runs []*domain.ProfileRun, spec *domain.InterestSpec) ([]*domain.RunTimeline, error) {
	if spec == nil || len(spec.Layers) == 0 {
		return nil, domain.ErrNoInterestSpec
	}

	for _, warning := range spec.Validate() {
		r.logger.Warn("Ambiguous interest spec.", zap.String("overlap", warning))
	}

	timelines := make([]*domain.RunTimeline, 0, len(runs))
	for _, run := range runs {
		timelines = append(timelines, r.reconstructRun(run, spec))
	}
	return timelines, nil
}

// ReconstructDirectory loads every profiling log under dir and reconstructs
// the surviving runs. Per-file load failures are returned alongside the
// timelines; they never abort the remaining files.
func (r *Reconstructor) ReconstructDirectory(dir string, spec *domain.InterestSpec, onFile func(path string, err error)) ([]*domain.RunTimeline, []error, error) {
	runs, failures := r.LoadRuns(dir, onFile)
	timelines, err := r.Reconstruct(runs, spec)
	if err != nil {
		return nil, failures, err
	}
	return timelines, failures, nil
}

func (r *Reconstructor) reconstructRun(run *domain.ProfileRun, spec *domain.InterestSpec) *domain.RunTimeline {
	timeline := domain.NewRunTimeline(run.HostName, run.AvgIterTimeMs)

	// Synthetic stream labels are assigned in first-seen order over the
	// labeled event sequence of this run; raw stream values have no identity
	// beyond one run.
	streamLabels := make(map[domain.StreamKey]string)

	matched := 0
	for _, event := range run.Events {
		layer, ok := spec.Match(event.Name, event.MetTimesWithinThisStream)
		if !ok {
			continue
		}
		matched++

		streamID, ok := streamLabels[event.Stream]
		if !ok {
			streamID = fmt.Sprintf("stream_%d", len(streamLabels))
			streamLabels[event.Stream] = streamID
		}

		labeled := &domain.LabeledEvent{
			Label:                          layer + "." + event.Name,
			Layer:                          layer,
			Name:                           event.Name,
			DeviceID:                       event.DeviceID,
			StreamID:                       streamID,
			StartIndex:                     event.StartIndex,
			EndIndex:                       event.EndIndex,
			MeasuredTimesMs:                event.MeasuredTimesMs,
			IterStartToEventStartTimesMs:   event.IterStartToEventStartTimesMs,
			AvgMeasuredTimeMs:              event.AvgMeasuredTimeMs,
			AvgIterStartToEventStartTimeMs: event.AvgIterStartToEventStartTimeMs,
		}

		device := timeline.Device(fmt.Sprintf("device_%d", event.DeviceID))
		events, _ := device.Streams.Get(streamID)
		device.Streams.Set(streamID, append(events, labeled))
	}

	// Within each (device, stream) group, order by mean offset from
	// iteration start. Undefined offsets keep their group positions; the
	// defined offsets are sorted among themselves around them.
	for de := timeline.Devices.Front(); de != nil; de = de.Next() {
		for se := de.Value.Streams.Front(); se != nil; se = se.Next() {
			sortByMeanOffset(se.Value)
		}
	}

	r.sugaredLogger.Debugf("Reconstructed timeline for host %s: %d of %d events matched the interest spec.",
		run.HostName, matched, len(run.Events))

	return timeline
}

// sortByMeanOffset stable-sorts a group's events by ascending mean offset.
// Events with an undefined offset stay at their positions: the defined events
// are pulled out, sorted, and written back into the defined slots, so the
// defined subsequence is always non-decreasing.
func sortByMeanOffset(events []*domain.LabeledEvent) {
	defined := make([]*domain.LabeledEvent, 0, len(events))
	for _, event := range events {
		if event.AvgIterStartToEventStartTimeMs.IsDefined() {
			defined = append(defined, event)
		}
	}

	sort.SliceStable(defined, func(i, j int) bool {
		return defined[i].AvgIterStartToEventStartTimeMs < defined[j].AvgIterStartToEventStartTimeMs
	})

	next := 0
	for i, event := range events {
		if event.AvgIterStartToEventStartTimeMs.IsDefined() {
			events[i] = defined[next]
			next++
		}
	}
}

// LayerView derives the layer-first view (layer -> device -> stream) from an
// already-reconstructed timeline. It regroups the same LabeledEvent set; no
// second labeling pass happens, so both views always agree.
func LayerView(timeline *domain.RunTimeline) *domain.LayerTimeline {
	view := domain.NewLayerTimeline(timeline.HostName, timeline.AvgIterTimeMs)

	for de := timeline.Devices.Front(); de != nil; de = de.Next() {
		for se := de.Value.Streams.Front(); se != nil; se = se.Next() {
			for _, event := range se.Value {
				devices := view.Layer(event.Layer)
				device, ok := devices.Get(de.Key)
				if !ok {
					device = domain.NewDeviceTimeline()
					devices.Set(de.Key, device)
				}
				events, _ := device.Streams.Get(event.StreamID)
				device.Streams.Set(event.StreamID, append(events, event))
			}
		}
	}

	return view
}
